// Package wal implements the append-only write-ahead log each collection
// uses as its durability boundary: every mutation is durable once its
// record has been fsynced here, before storage/index/payload state is
// touched. Grounded on xDarkicex-libravdb's internal/storage/wal package
// (Append/Read/Truncate/Close shape, bufio writer + file.Sync durability),
// generalized from its JSON-encoded Entry to the binary
// {lsn,type,length,payload,crc32} record format and segment rotation.
package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vectorizer-db/vectorizer/pkg/observability"
)

// walMagic tags every segment file (spec §6 "WAL segment file").
const walMagic = "VECWAL01"

// RecordType identifies the kind of mutation a record carries.
type RecordType uint8

const (
	RecordInsert RecordType = iota
	RecordUpdate
	RecordDelete
	RecordCreateCollection
	RecordDeleteCollection
	RecordCheckpoint
)

// Record is one WAL entry. LSN is assigned by the WAL on Append; callers
// supply Type and Payload.
type Record struct {
	LSN     uint64
	Type    RecordType
	Payload []byte
}

// WAL manages one collection's segment files under dir, rotating to a new
// segment once the active one exceeds maxSegmentBytes.
type WAL struct {
	mu              sync.Mutex
	dir             string
	maxSegmentBytes int64

	file        *os.File
	writer      *bufio.Writer
	segmentSize int64
	segmentLSN  uint64 // start_lsn of the active segment
	nextLSN     uint64
	closed      bool
}

// Open opens (or creates) the WAL directory, recovers nextLSN from the
// highest LSN found across existing segments, and opens a fresh active
// segment for appends.
func Open(dir string, maxSegmentBytes int64) (*WAL, error) {
	if maxSegmentBytes <= 0 {
		maxSegmentBytes = 64 * 1024 * 1024
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}

	w := &WAL{dir: dir, maxSegmentBytes: maxSegmentBytes}

	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	for _, seg := range segments {
		_, lastLSN, err := scanSegment(filepath.Join(dir, seg), func(Record) error { return nil })
		if err != nil {
			return nil, fmt.Errorf("scan segment %s: %w", seg, err)
		}
		if lastLSN+1 > w.nextLSN {
			w.nextLSN = lastLSN + 1
		}
	}

	if err := w.openNewSegment(w.nextLSN); err != nil {
		return nil, err
	}
	return w, nil
}

func segmentName(startLSN uint64) string {
	return fmt.Sprintf("%020d.wal", startLSN)
}

func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read wal dir: %w", err)
	}
	var segments []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".wal") {
			segments = append(segments, e.Name())
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func (w *WAL) openNewSegment(startLSN uint64) error {
	path := filepath.Join(w.dir, segmentName(startLSN))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat segment: %w", err)
	}
	if stat.Size() == 0 {
		if _, err := f.WriteString(walMagic); err != nil {
			f.Close()
			return fmt.Errorf("write segment magic: %w", err)
		}
		lsnBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(lsnBuf, startLSN)
		if _, err := f.Write(lsnBuf); err != nil {
			f.Close()
			return fmt.Errorf("write segment start_lsn: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return err
	}
	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return err
	}

	w.file = f
	w.writer = bufio.NewWriter(f)
	w.segmentLSN = startLSN
	w.segmentSize = size
	return nil
}

// Append durably writes a record and returns the LSN it was assigned.
func (w *WAL) Append(recType RecordType, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("wal is closed")
	}

	lsn := w.nextLSN

	buf := make([]byte, 0, 13+len(payload))
	lsnBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(lsnBuf, lsn)
	buf = append(buf, lsnBuf...)
	buf = append(buf, byte(recType))
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(payload)))
	buf = append(buf, lenBuf...)
	buf = append(buf, payload...)

	checksum := crc32.ChecksumIEEE(buf)
	crcBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(crcBuf, checksum)
	buf = append(buf, crcBuf...)

	if _, err := w.writer.Write(buf); err != nil {
		return 0, fmt.Errorf("write wal record: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return 0, fmt.Errorf("flush wal: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("fsync wal: %w", err)
	}

	w.nextLSN++
	w.segmentSize += int64(len(buf))

	if w.segmentSize >= w.maxSegmentBytes {
		if err := w.rotate(); err != nil {
			return lsn, fmt.Errorf("rotate segment: %w", err)
		}
	}

	return lsn, nil
}

func (w *WAL) rotate() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	return w.openNewSegment(w.nextLSN)
}

// Checkpoint marks the current LSN as durably captured by a snapshot and
// rotates to a fresh segment so prior segments become eligible for
// truncation via TruncateBefore.
func (w *WAL) Checkpoint() (uint64, error) {
	lsn, err := w.Append(RecordCheckpoint, nil)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotate(); err != nil {
		return lsn, err
	}
	return lsn, nil
}

// TruncateBefore removes segment files whose entire LSN range is below
// snapshotLSN, i.e. every record they contain is already covered by a
// checkpointed snapshot.
func (w *WAL) TruncateBefore(snapshotLSN uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	segments, err := listSegments(w.dir)
	if err != nil {
		return err
	}
	for _, seg := range segments {
		path := filepath.Join(w.dir, seg)
		if path == w.file.Name() {
			continue // never remove the active segment
		}
		_, lastLSN, err := scanSegment(path, func(Record) error { return nil })
		if err != nil {
			continue
		}
		if lastLSN < snapshotLSN {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove truncated segment %s: %w", seg, err)
			}
		}
	}
	return nil
}

// Close flushes and closes the active segment.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.closed = true
	return w.file.Close()
}

// NextLSN reports the LSN the next Append will assign.
func (w *WAL) NextLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextLSN
}

// NoCursor is the sentinel afterLSN value meaning "no floor — replay every
// record from LSN 0", used when a collection has no prior checkpoint
// cursor to resume from. It is the max uint64 rather than 0 because LSNs
// start at 0 and 0 is itself a valid, replayable LSN.
const NoCursor = ^uint64(0)

// Replay reads every record with LSN > afterLSN across all segments, in
// order, invoking fn for each. Pass NoCursor to replay from the very
// beginning. A record with a bad CRC terminates that segment's replay
// (remainder of the segment is discarded) but processing continues with
// the next segment, per spec §4.7.
func Replay(dir string, afterLSN uint64, fn func(Record) error) error {
	segments, err := listSegments(dir)
	if err != nil {
		return err
	}
	for _, seg := range segments {
		_, _, err := scanSegment(filepath.Join(dir, seg), func(r Record) error {
			if afterLSN != NoCursor && r.LSN <= afterLSN {
				return nil
			}
			return fn(r)
		})
		if err != nil {
			return fmt.Errorf("replay segment %s: %w", seg, err)
		}
	}
	return nil
}

// scanSegment reads every well-formed record in a segment file, calling fn
// for each, and returns (recordCount, lastLSN). It stops at the first
// corrupted record (bad magic aborts entirely; bad CRC on a record
// truncates the remainder of this segment only); Replay then continues
// with the next segment.
func scanSegment(path string, fn func(Record) error) (int, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, len(walMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return 0, 0, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != walMagic {
		return 0, 0, fmt.Errorf("bad wal magic %q", magic)
	}
	startLSNBuf := make([]byte, 8)
	if _, err := io.ReadFull(r, startLSNBuf); err != nil {
		return 0, 0, fmt.Errorf("read start_lsn: %w", err)
	}

	var count int
	var lastLSN uint64

	for {
		head := make([]byte, 13)
		if _, err := io.ReadFull(r, head); err != nil {
			if err == io.EOF {
				break
			}
			// Partial record at EOF (mid-write crash): stop here, discard
			// the remainder.
			break
		}
		lsn := binary.LittleEndian.Uint64(head[0:8])
		recType := RecordType(head[8])
		length := binary.LittleEndian.Uint32(head[9:13])

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			break
		}
		crcBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, crcBuf); err != nil {
			break
		}
		wantCRC := binary.LittleEndian.Uint32(crcBuf)

		check := make([]byte, 0, 13+len(payload))
		check = append(check, head...)
		check = append(check, payload...)
		gotCRC := crc32.ChecksumIEEE(check)

		if gotCRC != wantCRC {
			// Invalid CRC terminates the segment; remainder discarded.
			observability.GetGlobalLogger().WithLSN(lsn).Warn(
				"wal: crc mismatch, discarding remainder of segment",
				map[string]interface{}{"segment": path},
			)
			break
		}

		if err := fn(Record{LSN: lsn, Type: recType, Payload: payload}); err != nil {
			return count, lastLSN, err
		}
		count++
		lastLSN = lsn
	}

	return count, lastLSN, nil
}
