// Package environment outlines the interfaces and structs needed to
// implement concrete multi-task environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/metalearn/pearl/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() mat.Vector
}

// Ender determines when episodes end. An Ender may modify the timestep
// it is given so that its StepType field reflects episode termination.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some
// environment
type Task interface {
	Starter
	Ender

	// GetReward returns the reward for taking an action in a state,
	// leading to the next state
	GetReward(state, action, nextState mat.Vector) float64

	// AtGoal returns whether the argument state is a goal state
	AtGoal(state mat.Matrix) bool

	// Min and Max return the minimum and maximum attainable rewards
	Min() float64
	Max() float64

	RewardSpec() Spec
}

// Environment implements a simulated environment, which includes a Task
// to complete
type Environment interface {
	Task
	Reset() timestep.TimeStep // Resets between episodes
	Step(action *mat.VecDense) (timestep.TimeStep, bool)
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}

// MultiTask is an Environment whose Task is drawn from a finite,
// indexed family of task variants. Switching the active task changes
// the reward scheme and possibly the start-state distribution while
// leaving the transition dynamics fixed, which is the setting that
// meta-reinforcement learning trains over.
//
// A MultiTask environment simulates a fixed number of parallel
// instances. The training core in this module supports exactly one
// instance and fails fast otherwise.
type MultiTask interface {
	Environment

	// ResetTask switches the environment to the task at the argument
	// index. The next Reset starts an episode under the new task.
	ResetTask(idx int) error

	// TaskIndex returns the index of the active task
	TaskIndex() int

	// NumTasks returns the number of task variants in the family
	NumTasks() int

	// NumInstances returns the number of parallel environment
	// instances that Step advances
	NumInstances() int
}
