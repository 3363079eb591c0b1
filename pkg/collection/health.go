package collection

// Health reports the per-collection counters spec §4.10 requires a Store
// to aggregate: "health (counts, WAL lag, last checkpoint age, memory
// footprint, tombstone ratio per collection)". It reports the vector
// count, tombstone ratio, write version, and the WAL's next LSN
// (WALNextLSN, zero when no WAL is configured). WAL lag, last checkpoint
// age and memory footprint are not reported: the collection tracks no
// checkpoint timestamps or memory totals.
type Health struct {
	Name           string
	State          string
	VectorCount    int64
	TombstoneRatio float64
	WALEnabled     bool
	WALNextLSN     uint64
	Version        uint64
}

// Health snapshots the collection's current counters for Store.Health.
func (c *Collection) Health() Health {
	h := Health{
		Name:           c.cfg.Name,
		State:          c.getState().String(),
		VectorCount:    int64(c.storage.Len()),
		TombstoneRatio: c.index.TombstoneFraction(),
		Version:        c.Version(),
	}
	if c.wal != nil {
		h.WALEnabled = true
		h.WALNextLSN = c.wal.NextLSN()
	}
	return h
}
