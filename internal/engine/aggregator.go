package engine

import (
	"sort"
	"sync"

	"github.com/Veraticus/nsfw-sweep/internal/model"
)

// Aggregator holds classification results ordered by non-increasing confidence.
// All methods are safe for concurrent use.
type Aggregator struct {
	results []model.ClassificationResult
	mu      sync.Mutex
}

// NewAggregator creates an empty result collection.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Insert places result before the first entry whose confidence is strictly
// lower, or at the end. Equal confidences keep their arrival order.
func (a *Aggregator) Insert(result model.ClassificationResult) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := sort.Search(len(a.results), func(i int) bool {
		return a.results[i].Confidence < result.Confidence
	})

	a.results = append(a.results, model.ClassificationResult{})
	copy(a.results[i+1:], a.results[i:])
	a.results[i] = result
	return i
}

// Remove deletes the first entry with the given filename. It reports whether
// an entry was removed; removing an absent filename is a no-op.
func (a *Aggregator) Remove(filename string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, r := range a.results {
		if r.Filename == filename {
			a.results = append(a.results[:i], a.results[i+1:]...)
			return true
		}
	}
	return false
}

// Find returns the first entry with the given filename.
func (a *Aggregator) Find(filename string) (model.ClassificationResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range a.results {
		if r.Filename == filename {
			return r, true
		}
	}
	return model.ClassificationResult{}, false
}

// Snapshot returns a copy of the current ordered results.
func (a *Aggregator) Snapshot() []model.ClassificationResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.ClassificationResult, len(a.results))
	copy(out, a.results)
	return out
}

// Len returns the number of results.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results)
}
