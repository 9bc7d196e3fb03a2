// Package network implements the gorgonia neural networks backing the
// latent-context encoder and the policy
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Activation represents an activation function type
type Activation func(x *G.Node) (*G.Node, error)

// ReLU returns the rectified linear activation
func ReLU() Activation {
	return func(x *G.Node) (*G.Node, error) { return G.Rectify(x) }
}

// TanH returns the hyperbolic tangent activation
func TanH() Activation {
	return func(x *G.Node) (*G.Node, error) { return G.Tanh(x) }
}

// Identity returns the identity activation
func Identity() Activation {
	return func(x *G.Node) (*G.Node, error) { return x, nil }
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     Activation
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x = G.Must(G.Mul(x, f.weights))
	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.bias, nil, []byte{0}))
	}
	if f.act == nil {
		return x, nil
	}
	return f.act(x)
}

// MLP implements a multi-layered perceptron on a gorgonia graph. A
// final linear layer is always appended so that the network predicts
// exactly the requested number of outputs.
type MLP struct {
	g      *G.ExprGraph
	layers []*fcLayer
	input  *G.Node

	numInputs  int
	numOutputs int
	batchSize  int

	prediction *G.Node
	predVal    G.Value

	learnables G.Nodes
}

// NewMLP creates and returns a new multi-layered perceptron with
// len(hiddenSizes)+1 layers, populating the graph g. For index i,
// hiddenSizes[i] is the number of nodes in hidden layer i and
// activations[i] is its activation function. The final linear output
// layer has a bias unit and no activation. The init parameter
// determines the weight initialization scheme.
func NewMLP(features, batch, outputs int, g *G.ExprGraph, hiddenSizes []int,
	init G.InitWFn, activations []Activation) (*MLP, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newmlp: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if features < 1 || batch < 1 || outputs < 1 {
		return nil, fmt.Errorf("newmlp: features, batch, and outputs must "+
			"be positive \n\thave(%v, %v, %v)", features, batch, outputs)
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	sizes := make([]int, len(hiddenSizes)+1)
	copy(sizes, hiddenSizes)
	sizes[len(sizes)-1] = outputs

	acts := make([]Activation, len(activations)+1)
	copy(acts, activations)
	acts[len(acts)-1] = nil

	layers := make([]*fcLayer, len(sizes))
	in := features
	for i, out := range sizes {
		weights := G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
			G.WithName(fmt.Sprintf("L%vW", i)), G.WithInit(init))
		bias := G.NewMatrix(g, tensor.Float64, G.WithShape(1, out),
			G.WithName(fmt.Sprintf("L%vB", i)), G.WithInit(G.Zeroes()))

		layers[i] = &fcLayer{weights: weights, bias: bias, act: acts[i]}
		in = out
	}

	net := &MLP{
		g:          g,
		layers:     layers,
		input:      input,
		numInputs:  features,
		numOutputs: outputs,
		batchSize:  batch,
	}
	if _, err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newmlp: could not compute forward pass: %v",
			err)
	}

	return net, nil
}

// fwd performs the forward pass of the MLP on the input node
func (m *MLP) fwd(input *G.Node) (*G.Node, error) {
	pred := input
	var err error
	for i, l := range m.layers {
		if pred, err = l.fwd(pred); err != nil {
			return nil, fmt.Errorf("fwd: could not compute forward pass of "+
				"layer %v: %v", i, err)
		}
	}

	m.prediction = pred
	G.Read(m.prediction, &m.predVal)

	return pred, nil
}

// Graph returns the computational graph of the MLP
func (m *MLP) Graph() *G.ExprGraph {
	return m.g
}

// BatchSize returns the batch size of inputs to the MLP
func (m *MLP) BatchSize() int {
	return m.batchSize
}

// Features returns the number of features in a single input vector
func (m *MLP) Features() int {
	return m.numInputs
}

// Outputs returns the number of outputs predicted per input vector
func (m *MLP) Outputs() int {
	return m.numOutputs
}

// SetInput sets the value of the input node before running the
// forward pass
func (m *MLP) SetInput(input []float64) error {
	if len(input) != m.numInputs*m.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", m.numInputs*m.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(m.input.Shape()...),
	)
	return G.Let(m.input, inputTensor)
}

// Output returns the value of the MLP's prediction after the last
// forward pass
func (m *MLP) Output() G.Value {
	return m.predVal
}

// OutputData returns the prediction of the last forward pass as a
// flat float slice of length BatchSize()*Outputs()
func (m *MLP) OutputData() ([]float64, error) {
	if m.predVal == nil {
		return nil, fmt.Errorf("outputdata: no forward pass has been run")
	}
	data, ok := m.predVal.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("outputdata: prediction is not float64")
	}
	return data, nil
}

// Prediction returns the node of the computational graph that stores
// the output of the MLP
func (m *MLP) Prediction() *G.Node {
	return m.prediction
}

// Learnables returns the learnable nodes in the MLP
func (m *MLP) Learnables() G.Nodes {
	// Lazy instantiation
	if m.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(m.layers))
		for _, l := range m.layers {
			learnables = append(learnables, l.weights)
			if l.bias != nil {
				learnables = append(learnables, l.bias)
			}
		}
		m.learnables = G.Nodes(learnables)
	}
	return m.learnables
}
