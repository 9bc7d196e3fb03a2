// Package latent implements the lifecycle of the latent task variable:
// context accumulation, posterior inference, and sampling
package latent

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/metalearn/pearl/timestep"
)

// Context accumulates the (state, action, reward) transitions observed
// under the current task. Each row of the context is one transition,
// flattened as state features, then action features, then the reward.
// The posterior over z is inferred from these rows.
type Context struct {
	rows      [][]float64
	obsDim    int
	actionDim int
}

// NewContext returns an empty Context for the argument observation and
// action sizes
func NewContext(obsDim, actionDim int) *Context {
	return &Context{obsDim: obsDim, actionDim: actionDim}
}

// Append adds a transition to the context
func (c *Context) Append(t timestep.Transition) {
	row := make([]float64, 0, c.obsDim+c.actionDim+1)
	for i := 0; i < c.obsDim; i++ {
		row = append(row, t.State.AtVec(i))
	}
	for i := 0; i < c.actionDim; i++ {
		row = append(row, t.Action.AtVec(i))
	}
	row = append(row, t.Reward)

	c.rows = append(c.rows, row)
}

// Len returns the number of accumulated transitions
func (c *Context) Len() int {
	return len(c.rows)
}

// Clear discards every accumulated transition
func (c *Context) Clear() {
	c.rows = nil
}

// RowSize returns the flattened length of a single context row
func (c *Context) RowSize() int {
	return c.obsDim + c.actionDim + 1
}

// Rows returns the accumulated context rows
func (c *Context) Rows() [][]float64 {
	return c.rows
}

// Tensor returns the context as a (Len, RowSize) tensor
func (c *Context) Tensor() (*tensor.Dense, error) {
	if len(c.rows) == 0 {
		return nil, fmt.Errorf("tensor: context is empty")
	}

	backing := make([]float64, 0, len(c.rows)*c.RowSize())
	for _, row := range c.rows {
		backing = append(backing, row...)
	}

	return tensor.New(
		tensor.WithBacking(backing),
		tensor.WithShape(len(c.rows), c.RowSize()),
	), nil
}
