package collection

import "fmt"

// Compact writes a fresh snapshot to snapshotPath, then truncates the WAL
// up to the LSN the snapshot reflects. It bounds WAL replay time on the next
// Open and does no graph surgery: tombstoned HNSW nodes are not removed
// (hnsw.Index.Delete only marks a node and updates its counters), so they
// stay in the graph, in the snapshot and in TombstoneFraction after Compact.
func (c *Collection) Compact(snapshotPath string) error {
	if err := c.setState(Compacting); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.Save(snapshotPath); err != nil {
		c.setState(Ready)
		return fmt.Errorf("collection: compact: snapshot: %w", err)
	}

	if c.wal != nil {
		checkpointLSN, err := c.wal.Checkpoint()
		if err != nil {
			c.setState(Ready)
			return fmt.Errorf("collection: compact: checkpoint: %w", err)
		}
		if err := c.wal.TruncateBefore(checkpointLSN); err != nil {
			c.setState(Ready)
			return fmt.Errorf("collection: compact: truncate: %w", err)
		}
	}

	return c.setState(Ready)
}
