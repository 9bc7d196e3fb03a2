// Package agent defines the actor and learner collaborator interfaces
// consumed by the meta-training core
package agent

import (
	"gonum.org/v1/gonum/mat"

	"github.com/metalearn/pearl/expreplay"
	"github.com/metalearn/pearl/timestep"
)

// Actor is a context-conditioned policy. It owns the latent task
// variable z: a low-dimensional embedding summarizing recent task
// experience, sampled from a belief distribution that the actor
// maintains. The training core drives the belief's lifecycle through
// ClearZ, SampleZ, InferPosterior, and UpdateContext; the actor's
// network internals stay behind this interface.
type Actor interface {
	// GetAction selects an action for the argument observation under
	// the current latent sample
	GetAction(obs mat.Vector, deterministic bool) (*mat.VecDense, error)

	// SampleZ draws a new latent sample from the current belief
	SampleZ()

	// ClearZ resets the belief to the standard prior, draws a fresh
	// latent sample, and clears the accumulated context
	ClearZ()

	// InferPosterior updates the belief from a batch of context
	// transitions and draws a fresh latent sample from it
	InferPosterior(context expreplay.Batch) error

	// UpdateContext appends a transition to the running context
	UpdateContext(t timestep.Transition)

	// ResetNoise resamples state-dependent exploration noise
	ResetNoise()

	// ZMeans returns the mean of the current belief over z
	ZMeans() mat.Vector

	// ZVars returns the variance of the current belief over z
	ZVars() mat.Vector
}

// MetaLearner performs one gradient update across a meta-batch of
// tasks. Implementations read the per-task replay buffers they were
// constructed with; the training core only hands over the sampled task
// indices.
type MetaLearner interface {
	TrainStep(taskIndices []int) error
}
