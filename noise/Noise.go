// Package noise implements additive action noise processes for
// exploration in continuous action spaces
package noise

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ActionNoise is a stateful noise process sampled once per environment
// step and added to the policy's action. Reset is called at episode
// boundaries so that temporally correlated processes restart cleanly.
type ActionNoise interface {
	Sample() *mat.VecDense
	Reset()
}

// Normal is uncorrelated Gaussian action noise
type Normal struct {
	dims int
	dist distuv.Normal
}

// NewNormal returns Gaussian action noise with the argument mean and
// standard deviation on each action dimension
func NewNormal(dims int, mean, stddev float64, seed uint64) (*Normal, error) {
	if dims < 1 {
		return nil, fmt.Errorf("newnormal: dims must be >= 1, got %v", dims)
	}
	if stddev <= 0 {
		return nil, fmt.Errorf("newnormal: stddev must be positive, got %v",
			stddev)
	}

	return &Normal{
		dims: dims,
		dist: distuv.Normal{
			Mu:    mean,
			Sigma: stddev,
			Src:   rand.NewSource(seed),
		},
	}, nil
}

// Sample draws a fresh noise vector
func (n *Normal) Sample() *mat.VecDense {
	sample := make([]float64, n.dims)
	for i := range sample {
		sample[i] = n.dist.Rand()
	}
	return mat.NewVecDense(n.dims, sample)
}

// Reset is a no-op since samples are uncorrelated across steps
func (n *Normal) Reset() {}

// OrnsteinUhlenbeck is temporally correlated action noise following an
// Ornstein-Uhlenbeck process. Successive samples drift toward the mean
// while accumulating Gaussian increments, which gives smoother
// exploration than uncorrelated noise.
type OrnsteinUhlenbeck struct {
	dims  int
	mean  float64
	theta float64
	sigma float64
	dt    float64

	prev []float64
	dist distuv.Normal
}

// NewOrnsteinUhlenbeck returns an Ornstein-Uhlenbeck noise process.
// Theta controls the rate of mean reversion and sigma the scale of the
// Gaussian increments, integrated with timestep dt.
func NewOrnsteinUhlenbeck(dims int, mean, theta, sigma, dt float64,
	seed uint64) (*OrnsteinUhlenbeck, error) {
	if dims < 1 {
		return nil, fmt.Errorf("newornsteinuhlenbeck: dims must be >= 1, "+
			"got %v", dims)
	}
	if sigma <= 0 || theta <= 0 || dt <= 0 {
		return nil, fmt.Errorf("newornsteinuhlenbeck: theta, sigma, and dt "+
			"must be positive \n\thave(%v, %v, %v)", theta, sigma, dt)
	}

	ou := &OrnsteinUhlenbeck{
		dims:  dims,
		mean:  mean,
		theta: theta,
		sigma: sigma,
		dt:    dt,
		dist: distuv.Normal{
			Mu:    0.0,
			Sigma: 1.0,
			Src:   rand.NewSource(seed),
		},
	}
	ou.Reset()

	return ou, nil
}

// Sample advances the process one timestep and returns its new value
func (o *OrnsteinUhlenbeck) Sample() *mat.VecDense {
	next := make([]float64, o.dims)
	for i := range next {
		drift := o.theta * (o.mean - o.prev[i]) * o.dt
		diffusion := o.sigma * o.dist.Rand()
		next[i] = o.prev[i] + drift + diffusion
	}
	o.prev = next
	return mat.NewVecDense(o.dims, append([]float64{}, next...))
}

// Reset restarts the process at its mean
func (o *OrnsteinUhlenbeck) Reset() {
	o.prev = make([]float64, o.dims)
	for i := range o.prev {
		o.prev[i] = o.mean
	}
}
