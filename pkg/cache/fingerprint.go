package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/vectorizer-db/vectorizer/pkg/filter"
)

// Fingerprint hashes the inputs a cached query depends on — collection,
// query vector bytes, k, ef_search, the filter tree, and a caller-supplied
// params blob — into one cache key, plus the collection's write-version
// counter so that a write invalidates every fingerprint computed against
// the old version without iterating the cache at all. Grounded on
// GenerateVectorQueryKey/GenerateHybridQueryKey (sha256 over
// binary.Write'd float bits and int32 params), generalized to also fold
// in a canonicalized filter tree and the version counter.
func Fingerprint(collectionName string, query []float32, k, efSearch int, f *filter.Node, version uint64, params string) string {
	h := sha256.New()
	h.Write([]byte(collectionName))
	for _, v := range query {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	writeInt32(h, int32(k))
	writeInt32(h, int32(efSearch))
	writeFilter(h, f)
	writeUint64(h, version)
	h.Write([]byte(params))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func writeInt32(h interface{ Write([]byte) (int, error) }, v int32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	h.Write(buf[:])
}

func writeUint64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

// writeFilter walks the predicate tree in a fixed field order so that
// logically identical trees always canonicalize to the same bytes,
// regardless of how the caller built them.
func writeFilter(h interface{ Write([]byte) (int, error) }, n *filter.Node) {
	if n == nil {
		h.Write([]byte{0})
		return
	}
	if n.Leaf != nil {
		h.Write([]byte{1})
		writeLeaf(h, n.Leaf)
		return
	}
	h.Write([]byte{2})
	writeNodeList(h, n.Must)
	h.Write([]byte{3})
	writeNodeList(h, n.Should)
	h.Write([]byte{4})
	writeNodeList(h, n.MustNot)
}

// writeNodeList encodes each child separately and writes the encodings in
// sorted order, so the order children were listed in a combinator does not
// change the fingerprint.
func writeNodeList(h interface{ Write([]byte) (int, error) }, nodes []*filter.Node) {
	writeInt32(h, int32(len(nodes)))
	encoded := make([]string, len(nodes))
	for i, child := range nodes {
		var b bytes.Buffer
		writeFilter(&b, child)
		encoded[i] = b.String()
	}
	sort.Strings(encoded)
	for _, e := range encoded {
		h.Write([]byte(e))
	}
}

func writeLeaf(h interface{ Write([]byte) (int, error) }, leaf *filter.LeafPredicate) {
	writeInt32(h, int32(leaf.Kind))
	h.Write([]byte(leaf.Key))
	fmt.Fprintf(h, "%v", leaf.MatchValue)
	writeFloatPtr(h, leaf.Gt)
	writeFloatPtr(h, leaf.Gte)
	writeFloatPtr(h, leaf.Lt)
	writeFloatPtr(h, leaf.Lte)
	fmt.Fprintf(h, "%v|%v|%v|%v|%v|%v|%v", leaf.SWLat, leaf.SWLon, leaf.NELat, leaf.NELon, leaf.CenterLat, leaf.CenterLon, leaf.RadiusMeters)
	writeInt32(h, int32(leaf.Cmp))
	writeInt32(h, int32(leaf.N))
	h.Write([]byte(leaf.Text))
	writeInt32(h, int32(leaf.TextKind))
}

func writeFloatPtr(h interface{ Write([]byte) (int, error) }, f *float64) {
	if f == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	fmt.Fprintf(h, "%v", *f)
}
