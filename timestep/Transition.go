package timestep

import (
	"gonum.org/v1/gonum/mat"
)

// Transition packages together a single environment transition as it is
// stored in a replay buffer: the state, the action taken in that state,
// the resulting reward, discount, and next state, and whether the next
// state terminated the episode. Info carries optional per-transition
// metadata such as a terminal observation.
type Transition struct {
	State     mat.Vector
	Action    mat.Vector
	Reward    float64
	Discount  float64
	NextState mat.Vector
	Done      bool
	Info      map[string]interface{}
}

// NewTransition constructs a Transition from the timestep at which the
// action was taken and the timestep the action led to.
func NewTransition(step TimeStep, action mat.Vector,
	next TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    next.Reward,
		Discount:  next.Discount,
		NextState: next.Observation,
		Done:      next.Last(),
	}
}
