// Package expreplay implements per-task experience replay storage for
// meta-reinforcement learning
package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/metalearn/pearl/timestep"
)

// Buffer implements a fixed-capacity experience replay buffer. Once
// full, adding a transition silently overwrites the oldest one: the
// circular-overwrite policy is the buffer's own, and callers tolerate
// overwritten early transitions without additional signalling.
type Buffer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of transitions uniformly with
	// replacement from the stored transitions
	Sample(batchSize int) (Batch, error)

	// Reset discards every stored transition
	Reset()

	// Pos returns the position at which the next transition will be
	// written
	Pos() int

	// Full returns whether the buffer has wrapped around at least once
	Full() bool

	// Capacity returns the current number of stored transitions
	Capacity() int

	// MaxCapacity returns the maximum number of storable transitions
	MaxCapacity() int
}

// Batch holds a batch of transitions sampled from a Buffer. Vector
// quantities are flattened in row-major order: the i'th state occupies
// States[i*ObsDim : (i+1)*ObsDim].
type Batch struct {
	States     []float64
	Actions    []float64
	Rewards    []float64
	Discounts  []float64
	NextStates []float64
	Dones      []float64

	Size      int
	ObsDim    int
	ActionDim int
}

// circular is the concrete Buffer. Transitions are stored in
// preallocated flat caches indexed by a write position that wraps at
// maxCapacity.
type circular struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	discountCache  []float64
	nextStateCache []float64
	doneCache      []float64

	pos  int
	full bool

	maxCapacity int
	obsDim      int
	actionDim   int

	rng *rand.Rand
}

// New creates and returns a new Buffer storing at most capacity
// transitions with the argument observation and action sizes.
func New(capacity, obsDim, actionDim int, seed uint64) (Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be >= 1, got %v", capacity)
	}
	if obsDim < 1 {
		return nil, fmt.Errorf("new: obsDim must be >= 1, got %v", obsDim)
	}
	if actionDim < 1 {
		return nil, fmt.Errorf("new: actionDim must be >= 1, got %v",
			actionDim)
	}

	return &circular{
		stateCache:     make([]float64, capacity*obsDim),
		actionCache:    make([]float64, capacity*actionDim),
		rewardCache:    make([]float64, capacity),
		discountCache:  make([]float64, capacity),
		nextStateCache: make([]float64, capacity*obsDim),
		doneCache:      make([]float64, capacity),

		maxCapacity: capacity,
		obsDim:      obsDim,
		actionDim:   actionDim,

		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Add adds a transition to the buffer, overwriting the oldest stored
// transition when the buffer is full
func (c *circular) Add(t timestep.Transition) error {
	if t.State.Len() != c.obsDim || t.NextState.Len() != c.obsDim {
		return fmt.Errorf("add: invalid observation size \n\twant(%v)"+
			"\n\thave(%v)", c.obsDim, t.State.Len())
	}
	if t.Action.Len() != c.actionDim {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			c.actionDim, t.Action.Len())
	}

	index := c.pos

	stateInd := index * c.obsDim
	for i := 0; i < c.obsDim; i++ {
		c.stateCache[stateInd+i] = t.State.AtVec(i)
		c.nextStateCache[stateInd+i] = t.NextState.AtVec(i)
	}

	actionInd := index * c.actionDim
	for i := 0; i < c.actionDim; i++ {
		c.actionCache[actionInd+i] = t.Action.AtVec(i)
	}

	c.rewardCache[index] = t.Reward
	c.discountCache[index] = t.Discount
	if t.Done {
		c.doneCache[index] = 1.0
	} else {
		c.doneCache[index] = 0.0
	}

	c.pos++
	if c.pos >= c.maxCapacity {
		c.pos = 0
		c.full = true
	}
	return nil
}

// Sample samples and returns a batch of transitions from the buffer
func (c *circular) Sample(batchSize int) (Batch, error) {
	if batchSize < 1 {
		return Batch{}, &BufferError{Op: "sample", Err: errInvalidBatchSize}
	}
	if c.Capacity() == 0 {
		return Batch{}, &BufferError{Op: "sample", Err: errEmptyBuffer}
	}

	batch := Batch{
		States:     make([]float64, batchSize*c.obsDim),
		Actions:    make([]float64, batchSize*c.actionDim),
		Rewards:    make([]float64, batchSize),
		Discounts:  make([]float64, batchSize),
		NextStates: make([]float64, batchSize*c.obsDim),
		Dones:      make([]float64, batchSize),

		Size:      batchSize,
		ObsDim:    c.obsDim,
		ActionDim: c.actionDim,
	}

	for i := 0; i < batchSize; i++ {
		index := c.rng.Intn(c.Capacity())

		copy(batch.States[i*c.obsDim:(i+1)*c.obsDim],
			c.stateCache[index*c.obsDim:(index+1)*c.obsDim])
		copy(batch.NextStates[i*c.obsDim:(i+1)*c.obsDim],
			c.nextStateCache[index*c.obsDim:(index+1)*c.obsDim])
		copy(batch.Actions[i*c.actionDim:(i+1)*c.actionDim],
			c.actionCache[index*c.actionDim:(index+1)*c.actionDim])

		batch.Rewards[i] = c.rewardCache[index]
		batch.Discounts[i] = c.discountCache[index]
		batch.Dones[i] = c.doneCache[index]
	}

	return batch, nil
}

// Reset discards every stored transition. The backing caches are kept
// and overwritten by subsequent Adds.
func (c *circular) Reset() {
	c.pos = 0
	c.full = false
}

// Pos returns the position at which the next transition will be
// written
func (c *circular) Pos() int {
	return c.pos
}

// Full returns whether the buffer has wrapped around at least once
func (c *circular) Full() bool {
	return c.full
}

// Capacity returns the current number of stored transitions
func (c *circular) Capacity() int {
	if c.full {
		return c.maxCapacity
	}
	return c.pos
}

// MaxCapacity returns the maximum number of storable transitions
func (c *circular) MaxCapacity() int {
	return c.maxCapacity
}

// String returns the string representation of the buffer
func (c *circular) String() string {
	return fmt.Sprintf("Buffer | Stored: %v/%v | Position: %v",
		c.Capacity(), c.maxCapacity, c.pos)
}
