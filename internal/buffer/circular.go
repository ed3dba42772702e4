package buffer

import (
	"sync"

	"github.com/mtconnect/mtc-ingest/internal/observation"
)

// CircularBuffer stores delivered observations in sequence order, assigning
// the monotonic sequence number at insertion. When full, the oldest
// observation folds into the first checkpoint and is dropped.
type CircularBuffer struct {
	mu sync.Mutex

	size          int
	observations  []observation.Observation
	sequence      uint64
	firstSequence uint64

	first  *Checkpoint
	latest *Checkpoint
}

func NewCircularBuffer(size int) *CircularBuffer {
	return &CircularBuffer{
		size:          size,
		sequence:      1,
		firstSequence: 1,
		first:         NewCheckpoint(),
		latest:        NewCheckpoint(),
	}
}

// Add assigns the next sequence number, stores the observation and updates
// the latest checkpoint. Returns the assigned sequence.
func (b *CircularBuffer) Add(obs observation.Observation) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.sequence
	obs.SetSequence(seq)
	b.sequence++

	b.observations = append(b.observations, obs)
	if len(b.observations) > b.size {
		evicted := b.observations[0]
		b.observations = b.observations[1:]
		b.firstSequence++
		b.first.Add(evicted)
	}

	b.latest.Add(obs)
	return seq
}

// Sequence returns the next sequence number to be assigned.
func (b *CircularBuffer) Sequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sequence
}

// FirstSequence returns the oldest sequence still in the buffer.
func (b *CircularBuffer) FirstSequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.firstSequence
}

// Observations returns up to count observations starting at from.
func (b *CircularBuffer) Observations(from uint64, count int) []observation.Observation {
	b.mu.Lock()
	defer b.mu.Unlock()

	if from < b.firstSequence {
		from = b.firstSequence
	}
	start := int(from - b.firstSequence)
	if start >= len(b.observations) {
		return nil
	}
	end := start + count
	if end > len(b.observations) {
		end = len(b.observations)
	}
	out := make([]observation.Observation, end-start)
	copy(out, b.observations[start:end])
	return out
}

// Latest is the checkpoint of current values per data item.
func (b *CircularBuffer) Latest() *Checkpoint { return b.latest }

// First is the checkpoint at the start of the retained window.
func (b *CircularBuffer) First() *Checkpoint { return b.first }
