// Package pearl implements a context-conditioned Gaussian policy whose
// latent task belief is maintained by a product-of-Gaussians encoder
package pearl

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"

	"github.com/metalearn/pearl/agent/latent"
	"github.com/metalearn/pearl/environment"
	"github.com/metalearn/pearl/expreplay"
	"github.com/metalearn/pearl/network"
	"github.com/metalearn/pearl/timestep"
	"github.com/metalearn/pearl/utils/floatutils"
)

// Bounds on the policy's predicted log standard deviation
const (
	logStdMin = -20.0
	logStdMax = 2.0
)

// Config holds the architecture settings of the actor's networks
type Config struct {
	LatentDim          int
	PolicyHiddenSizes  []int
	EncoderHiddenSizes []int
	UseSDE             bool
	Seed               uint64
}

// Actor is a Gaussian policy conditioned on both the environment
// observation and a latent task sample z. The latent belief and the
// running context live here so that callers drive the belief lifecycle
// without touching network internals.
type Actor struct {
	obsDim    int
	actionDim int
	latentDim int

	encoder *latent.Encoder
	context *latent.Context
	z       []float64

	policy *network.MLP
	vm     G.VM

	actionBounds []r1.Interval

	useSDE bool
	sdeEps []float64

	norm distuv.Normal
}

// New creates and returns a new Actor for the argument environment.
// The policy network maps the concatenated observation and latent
// sample to the mean and log standard deviation of a Gaussian over
// actions, and the belief over z starts at the standard normal prior.
func New(env environment.Environment, c Config) (*Actor, error) {
	obsDim := env.ObservationSpec().Shape.Len()
	actionDim := env.ActionSpec().Shape.Len()

	encoder, err := latent.NewEncoder(obsDim, actionDim, c.LatentDim,
		c.EncoderHiddenSizes, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create latent encoder: %v", err)
	}

	activations := make([]network.Activation, len(c.PolicyHiddenSizes))
	for i := range activations {
		activations[i] = network.ReLU()
	}

	g := G.NewGraph()
	policy, err := network.NewMLP(obsDim+c.LatentDim, 1, 2*actionDim, g,
		c.PolicyHiddenSizes, G.GlorotN(1.0), activations)
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy network: %v", err)
	}

	bounds := make([]r1.Interval, actionDim)
	lower := env.ActionSpec().LowerBound
	upper := env.ActionSpec().UpperBound
	for i := range bounds {
		bounds[i] = r1.Interval{Min: lower.AtVec(i), Max: upper.AtVec(i)}
	}

	a := &Actor{
		obsDim:    obsDim,
		actionDim: actionDim,
		latentDim: c.LatentDim,

		encoder: encoder,
		context: latent.NewContext(obsDim, actionDim),

		policy: policy,
		vm:     G.NewTapeMachine(g),

		actionBounds: bounds,

		useSDE: c.UseSDE,

		norm: distuv.Normal{
			Mu:    0.0,
			Sigma: 1.0,
			Src:   rand.NewSource(c.Seed),
		},
	}
	a.ClearZ()
	a.ResetNoise()

	return a, nil
}

// GetAction selects an action for the argument observation under the
// current latent sample. When deterministic, the Gaussian mean is
// returned; otherwise an action is sampled. Either way the action is
// clipped to the environment's action bounds.
func (a *Actor) GetAction(obs mat.Vector,
	deterministic bool) (*mat.VecDense, error) {
	if obs.Len() != a.obsDim {
		return nil, fmt.Errorf("getaction: invalid observation length"+
			"\n\twant(%v)\n\thave(%v)", a.obsDim, obs.Len())
	}

	input := make([]float64, 0, a.obsDim+a.latentDim)
	for i := 0; i < a.obsDim; i++ {
		input = append(input, obs.AtVec(i))
	}
	input = append(input, a.z...)

	if err := a.policy.SetInput(input); err != nil {
		return nil, fmt.Errorf("getaction: %v", err)
	}
	if err := a.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("getaction: could not run policy forward "+
			"pass: %v", err)
	}
	defer a.vm.Reset()

	out, err := a.policy.OutputData()
	if err != nil {
		return nil, fmt.Errorf("getaction: %v", err)
	}

	action := make([]float64, a.actionDim)
	for i := 0; i < a.actionDim; i++ {
		mean := out[i]
		if deterministic {
			action[i] = mean
		} else {
			logStd := floatutils.Clip(out[a.actionDim+i], logStdMin, logStdMax)
			eps := a.norm.Rand()
			if a.useSDE {
				eps = a.sdeEps[i]
			}
			action[i] = mean + math.Exp(logStd)*eps
		}
		action[i] = floatutils.ClipInterval(action[i], a.actionBounds[i])
	}

	return mat.NewVecDense(a.actionDim, action), nil
}

// SampleZ draws a new latent sample from the current belief
func (a *Actor) SampleZ() {
	a.z = a.encoder.Sample()
}

// ClearZ resets the belief over z to the prior, draws a fresh latent
// sample, and clears the accumulated context
func (a *Actor) ClearZ() {
	a.encoder.Prior()
	a.SampleZ()
	a.context.Clear()
}

// InferPosterior updates the belief over z from a batch of context
// transitions and draws a fresh latent sample from the new belief
func (a *Actor) InferPosterior(context expreplay.Batch) error {
	if err := a.encoder.InferBatch(context); err != nil {
		return fmt.Errorf("inferposterior: %v", err)
	}
	a.SampleZ()
	return nil
}

// UpdateContext appends a transition to the running context
func (a *Actor) UpdateContext(t timestep.Transition) {
	a.context.Append(t)
}

// ResetNoise resamples the state-dependent exploration noise. When SDE
// is off this is a no-op for action selection, but the noise vector is
// kept fresh regardless.
func (a *Actor) ResetNoise() {
	eps := make([]float64, a.actionDim)
	for i := range eps {
		eps[i] = a.norm.Rand()
	}
	a.sdeEps = eps
}

// ZMeans returns the mean of the current belief over z
func (a *Actor) ZMeans() mat.Vector {
	return a.encoder.Means()
}

// ZVars returns the variance of the current belief over z
func (a *Actor) ZVars() mat.Vector {
	return a.encoder.Vars()
}

// Z returns the current latent sample
func (a *Actor) Z() []float64 {
	return append([]float64{}, a.z...)
}

// Context returns the running context accumulated since the last
// ClearZ
func (a *Actor) Context() *latent.Context {
	return a.context
}
