package expreplay

import (
	"fmt"
)

// Pool owns one replay buffer per task, keyed by the stable task
// index. A Pool with zero tasks is legal; sampling a task index from
// an empty range is the caller's failure to raise.
//
// Reset discards and reconstructs every buffer rather than clearing
// them in place, so no task can retain stale circular-index state from
// a previous curriculum stage.
type Pool struct {
	buffers []Buffer

	capacity  int
	obsDim    int
	actionDim int
	seed      uint64
}

// NewPool creates and returns a Pool of nTasks freshly constructed
// buffers, each with identical capacity and dimension configuration.
func NewPool(nTasks, capacity, obsDim, actionDim int,
	seed uint64) (*Pool, error) {
	if nTasks < 0 {
		return nil, fmt.Errorf("newpool: nTasks must be >= 0, got %v", nTasks)
	}

	p := &Pool{
		capacity:  capacity,
		obsDim:    obsDim,
		actionDim: actionDim,
		seed:      seed,
	}
	if err := p.construct(nTasks); err != nil {
		return nil, fmt.Errorf("newpool: %v", err)
	}
	return p, nil
}

// construct replaces the owned buffers with nTasks fresh ones
func (p *Pool) construct(nTasks int) error {
	buffers := make([]Buffer, nTasks)
	for i := range buffers {
		b, err := New(p.capacity, p.obsDim, p.actionDim,
			p.seed+uint64(i))
		if err != nil {
			return fmt.Errorf("could not construct buffer for task %v: %v",
				i, err)
		}
		buffers[i] = b
	}
	p.buffers = buffers
	return nil
}

// At returns the buffer owned by the pool slot for the argument task
// index
func (p *Pool) At(idx int) (Buffer, error) {
	if idx < 0 || idx >= len(p.buffers) {
		return nil, fmt.Errorf("at: task index %v out of range [0, %v)",
			idx, len(p.buffers))
	}
	return p.buffers[idx], nil
}

// NumTasks returns the number of per-task buffers in the pool
func (p *Pool) NumTasks() int {
	return len(p.buffers)
}

// Reset discards all buffers and reconstructs them identically. No
// partial reset is supported: reset is all-or-nothing so that no task
// retains transitions from before the reset.
func (p *Pool) Reset() error {
	if err := p.construct(len(p.buffers)); err != nil {
		return fmt.Errorf("reset: %v", err)
	}
	return nil
}
