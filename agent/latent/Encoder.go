package latent

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"

	"github.com/metalearn/pearl/expreplay"
	"github.com/metalearn/pearl/network"
)

// minVariance floors the per-transition Gaussian factors so that the
// posterior precision stays finite
const minVariance = 1e-7

// Encoder maintains a Gaussian belief over the latent task variable z.
// Each context transition is mapped by an MLP to an independent
// Gaussian factor over z, and the belief is the product of those
// factors with the standard normal prior. Until context is observed,
// the belief is the prior itself.
type Encoder struct {
	obsDim    int
	actionDim int
	latentDim int

	net *network.MLP
	vm  G.VM

	means []float64
	vars  []float64

	norm distuv.Normal
}

// NewEncoder creates and returns an Encoder with its belief set to the
// standard normal prior. The MLP mapping context rows to Gaussian
// factors has the argument hidden layer sizes with ReLU activations.
func NewEncoder(obsDim, actionDim, latentDim int, hiddenSizes []int,
	seed uint64) (*Encoder, error) {
	if latentDim < 1 {
		return nil, fmt.Errorf("newencoder: latentDim must be >= 1, got %v",
			latentDim)
	}

	rowSize := obsDim + actionDim + 1

	activations := make([]network.Activation, len(hiddenSizes))
	for i := range activations {
		activations[i] = network.ReLU()
	}

	g := G.NewGraph()
	net, err := network.NewMLP(rowSize, 1, 2*latentDim, g, hiddenSizes,
		G.GlorotN(1.0), activations)
	if err != nil {
		return nil, fmt.Errorf("newencoder: could not construct encoder "+
			"network: %v", err)
	}

	e := &Encoder{
		obsDim:    obsDim,
		actionDim: actionDim,
		latentDim: latentDim,

		net: net,
		vm:  G.NewTapeMachine(g),

		norm: distuv.Normal{
			Mu:    0.0,
			Sigma: 1.0,
			Src:   rand.NewSource(seed),
		},
	}
	e.Prior()

	return e, nil
}

// LatentDim returns the dimension of the latent task variable
func (e *Encoder) LatentDim() int {
	return e.latentDim
}

// Prior resets the belief to the standard normal prior
func (e *Encoder) Prior() {
	e.means = make([]float64, e.latentDim)
	e.vars = make([]float64, e.latentDim)
	for i := range e.vars {
		e.vars[i] = 1.0
	}
}

// Means returns the mean of the current belief
func (e *Encoder) Means() mat.Vector {
	return mat.NewVecDense(e.latentDim, append([]float64{}, e.means...))
}

// Vars returns the variance of the current belief
func (e *Encoder) Vars() mat.Vector {
	return mat.NewVecDense(e.latentDim, append([]float64{}, e.vars...))
}

// Sample draws a latent sample from the current belief
func (e *Encoder) Sample() []float64 {
	z := make([]float64, e.latentDim)
	for i := range z {
		z[i] = e.means[i] + math.Sqrt(e.vars[i])*e.norm.Rand()
	}
	return z
}

// Infer updates the belief from the argument context rows. Each row is
// one transition flattened as state, action, reward.
func (e *Encoder) Infer(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("infer: cannot infer posterior from empty context")
	}

	factorMeans := make([][]float64, len(rows))
	factorVars := make([][]float64, len(rows))
	for i, row := range rows {
		mu, variance, err := e.factor(row)
		if err != nil {
			return fmt.Errorf("infer: could not encode context row %v: %v",
				i, err)
		}
		factorMeans[i] = mu
		factorVars[i] = variance
	}

	e.means, e.vars = productOfGaussians(factorMeans, factorVars,
		e.latentDim)
	return nil
}

// InferBatch updates the belief from a batch of transitions sampled
// from an encoder buffer
func (e *Encoder) InferBatch(batch expreplay.Batch) error {
	return e.Infer(RowsFromBatch(batch))
}

// factor runs one context row through the encoder network and returns
// the Gaussian factor it parameterizes
func (e *Encoder) factor(row []float64) ([]float64, []float64, error) {
	if err := e.net.SetInput(append([]float64{}, row...)); err != nil {
		return nil, nil, err
	}
	if err := e.vm.RunAll(); err != nil {
		return nil, nil, err
	}
	defer e.vm.Reset()

	out, err := e.net.OutputData()
	if err != nil {
		return nil, nil, err
	}

	mu := make([]float64, e.latentDim)
	variance := make([]float64, e.latentDim)
	for i := 0; i < e.latentDim; i++ {
		mu[i] = out[i]
		variance[i] = softplus(out[e.latentDim+i]) + minVariance
	}
	return mu, variance, nil
}

// RowsFromBatch flattens a replay batch into context rows of state,
// action, reward
func RowsFromBatch(batch expreplay.Batch) [][]float64 {
	rows := make([][]float64, batch.Size)
	for i := 0; i < batch.Size; i++ {
		row := make([]float64, 0, batch.ObsDim+batch.ActionDim+1)
		row = append(row,
			batch.States[i*batch.ObsDim:(i+1)*batch.ObsDim]...)
		row = append(row,
			batch.Actions[i*batch.ActionDim:(i+1)*batch.ActionDim]...)
		row = append(row, batch.Rewards[i])
		rows[i] = row
	}
	return rows
}

// productOfGaussians returns the parameters of the product of the
// argument Gaussian factors with the standard normal prior. Products
// of Gaussians stay Gaussian: precisions add, and the mean is the
// precision-weighted average.
func productOfGaussians(means, variances [][]float64,
	latentDim int) ([]float64, []float64) {
	posteriorMean := make([]float64, latentDim)
	posteriorVar := make([]float64, latentDim)

	for i := 0; i < latentDim; i++ {
		// Unit prior: precision 1, mean 0
		precision := 1.0
		weighted := 0.0
		for j := range means {
			p := 1.0 / variances[j][i]
			precision += p
			weighted += means[j][i] * p
		}
		posteriorVar[i] = 1.0 / precision
		posteriorMean[i] = weighted / precision
	}

	return posteriorMean, posteriorVar
}

// softplus computes log(1 + exp(x)), the positive-valued link used for
// the factor variances
func softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}
