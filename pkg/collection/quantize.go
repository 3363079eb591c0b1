package collection

import (
	"sort"

	"github.com/vectorizer-db/vectorizer/pkg/quantization"
)

// trainThreshold is the number of raw vectors buffered before Train is
// attempted. PQ has a hard precondition (quantization.MinPQTrainingVectors);
// SQ8/Binary have no such constant in pkg/quantization, so a smaller
// collection-local minimum is used for them — large enough that per-
// dimension min/max (SQ8) or per-dimension median (Binary) are meaningful
// statistics rather than a handful of points.
const defaultScalarTrainThreshold = 64

func (c *Collection) trainThreshold() int {
	if c.cfg.Quantization == quantization.PQ {
		return quantization.MinPQTrainingVectors
	}
	return defaultScalarTrainThreshold
}

// observeForQuantization feeds a freshly inserted vector into the
// quantizer's training pipeline: buffered until trainThreshold is reached,
// then trained once (swapping in the codebook as one atomic pointer
// replacement per spec §5), encoding every buffered vector plus all
// subsequent inserts against it.
func (c *Collection) observeForQuantization(internalID uint64, vector []float32) {
	if c.quantizer == nil {
		return
	}
	c.quantMu.Lock()
	defer c.quantMu.Unlock()

	if c.codebook != nil {
		c.codes[internalID] = c.quantizer.Encode(c.codebook, vector)
		return
	}

	c.trainBuffer = append(c.trainBuffer, trainSample{id: internalID, vector: vector})
	if len(c.trainBuffer) < c.trainThreshold() {
		return
	}

	samples := make([][]float32, len(c.trainBuffer))
	for i, ts := range c.trainBuffer {
		samples[i] = ts.vector
	}
	cb, err := c.quantizer.Train(samples)
	if err != nil {
		// Leave buffered; a later call with more samples may succeed (e.g.
		// PQ rejects under MinPQTrainingVectors, though the length check
		// above should already prevent that case).
		return
	}
	c.codebook = cb
	for _, ts := range c.trainBuffer {
		c.codes[ts.id] = c.quantizer.Encode(cb, ts.vector)
	}
	c.trainBuffer = nil
}

// quantizedFirstPass scores every trained code against query via the
// quantizer's asymmetric distance (always smaller-is-better, regardless of
// the collection's configured metric — see pkg/quantization's
// AsymmetricDistance implementations) and returns the candidateK closest
// internal ids. Returns ok=false when no codebook is trained yet or the
// quantizer doesn't support the asymmetric path, so callers fall back to
// the HNSW graph.
func (c *Collection) quantizedFirstPass(query []float32, candidateK int) ([]uint64, bool) {
	c.quantMu.RLock()
	defer c.quantMu.RUnlock()

	if c.codebook == nil {
		return nil, false
	}
	asym, ok := c.quantizer.(quantization.AsymmetricQuantizer)
	if !ok {
		return nil, false
	}

	table := asym.DistanceTable(c.codebook, query)
	type scored struct {
		id   uint64
		dist float32
	}
	scoredList := make([]scored, 0, len(c.codes))
	for id, code := range c.codes {
		scoredList = append(scoredList, scored{id: id, dist: asym.AsymmetricDistance(c.codebook, table, code)})
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].dist < scoredList[j].dist })

	if len(scoredList) > candidateK {
		scoredList = scoredList[:candidateK]
	}
	ids := make([]uint64, len(scoredList))
	for i, s := range scoredList {
		ids[i] = s.id
	}
	return ids, true
}
