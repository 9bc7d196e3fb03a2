package pearl

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/metalearn/pearl/expreplay"
	"github.com/metalearn/pearl/network"
)

// LearnerConfig holds the hyperparameters of the critic's gradient
// updates
type LearnerConfig struct {
	BatchSize          int
	EmbeddingBatchSize int
	Gamma              float64
	LearningRate       float64
	HiddenSizes        []int
}

// Learner performs the gradient updates of meta-training. For each
// task in a meta-batch it infers the latent posterior from that task's
// context buffer, then fits a critic over (state, action, z) inputs by
// one-step temporal-difference regression against the actor's
// deterministic next action.
type Learner struct {
	conf LearnerConfig

	actor       *Actor
	replayPool  *expreplay.Pool
	encoderPool *expreplay.Pool

	critic  *network.MLP
	targets *G.Node
	vm      G.VM
	solver  G.Solver

	obsDim    int
	actionDim int
	latentDim int
}

// NewLearner creates and returns a Learner updating a critic over the
// argument actor's latent space
func NewLearner(actor *Actor, replayPool, encoderPool *expreplay.Pool,
	c LearnerConfig) (*Learner, error) {
	if c.BatchSize < 1 {
		return nil, fmt.Errorf("newlearner: BatchSize must be >= 1, got %v",
			c.BatchSize)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return nil, fmt.Errorf("newlearner: Gamma must be in [0, 1], got %v",
			c.Gamma)
	}

	obsDim := actor.obsDim
	actionDim := actor.actionDim
	latentDim := actor.latentDim

	activations := make([]network.Activation, len(c.HiddenSizes))
	for i := range activations {
		activations[i] = network.ReLU()
	}

	g := G.NewGraph()
	critic, err := network.NewMLP(obsDim+actionDim+latentDim, c.BatchSize,
		1, g, c.HiddenSizes, G.GlorotN(1.0), activations)
	if err != nil {
		return nil, fmt.Errorf("newlearner: could not create critic "+
			"network: %v", err)
	}

	targets := G.NewMatrix(g, tensor.Float64, G.WithShape(c.BatchSize, 1),
		G.WithName("targets"), G.WithInit(G.Zeroes()))

	losses := G.Must(G.Square(G.Must(G.Sub(critic.Prediction(), targets))))
	loss := G.Must(G.Mean(losses))
	if _, err := G.Grad(loss, critic.Learnables()...); err != nil {
		return nil, fmt.Errorf("newlearner: could not compute gradient: %v",
			err)
	}

	return &Learner{
		conf: c,

		actor:       actor,
		replayPool:  replayPool,
		encoderPool: encoderPool,

		critic:  critic,
		targets: targets,
		vm: G.NewTapeMachine(g,
			G.BindDualValues(critic.Learnables()...)),
		solver: G.NewAdamSolver(G.WithLearnRate(c.LearningRate)),

		obsDim:    obsDim,
		actionDim: actionDim,
		latentDim: latentDim,
	}, nil
}

// TrainStep performs one gradient update per task in the argument
// meta-batch
func (l *Learner) TrainStep(taskIndices []int) error {
	for _, idx := range taskIndices {
		if err := l.trainTask(idx); err != nil {
			return fmt.Errorf("trainstep: could not update on task %v: %v",
				idx, err)
		}
	}
	return nil
}

// trainTask performs one critic update for a single task
func (l *Learner) trainTask(idx int) error {
	encBuf, err := l.encoderPool.At(idx)
	if err != nil {
		return err
	}
	context, err := encBuf.Sample(l.conf.EmbeddingBatchSize)
	if err != nil {
		return fmt.Errorf("could not sample context: %v", err)
	}
	if err := l.actor.InferPosterior(context); err != nil {
		return err
	}
	z := l.actor.Z()

	replayBuf, err := l.replayPool.At(idx)
	if err != nil {
		return err
	}
	batch, err := replayBuf.Sample(l.conf.BatchSize)
	if err != nil {
		return fmt.Errorf("could not sample transitions: %v", err)
	}

	targets, err := l.tdTargets(batch, z)
	if err != nil {
		return err
	}

	return l.fit(batch, z, targets)
}

// tdTargets computes the one-step temporal-difference regression
// targets r + gamma * (1 - done) * Q(s', a', z) with a' the actor's
// deterministic action at s'
func (l *Learner) tdTargets(batch expreplay.Batch,
	z []float64) ([]float64, error) {
	nextActions := make([]float64, batch.Size*l.actionDim)
	for i := 0; i < batch.Size; i++ {
		obs := mat.NewVecDense(l.obsDim,
			batch.NextStates[i*l.obsDim:(i+1)*l.obsDim])
		action, err := l.actor.GetAction(obs, true)
		if err != nil {
			return nil, fmt.Errorf("could not select bootstrap action: %v",
				err)
		}
		copy(nextActions[i*l.actionDim:(i+1)*l.actionDim], action.RawVector().Data)
	}

	input := l.criticInput(batch.NextStates, nextActions, z, batch.Size)
	nextQ, err := l.forward(input)
	if err != nil {
		return nil, err
	}

	targets := make([]float64, batch.Size)
	for i := range targets {
		targets[i] = batch.Rewards[i] +
			l.conf.Gamma*(1-batch.Dones[i])*nextQ[i]
	}
	return targets, nil
}

// fit runs one solver step of the critic toward the argument targets
func (l *Learner) fit(batch expreplay.Batch, z, targets []float64) error {
	input := l.criticInput(batch.States, batch.Actions, z, batch.Size)
	if err := l.critic.SetInput(input); err != nil {
		return err
	}
	if err := G.Let(l.targets, l.targetTensor(targets)); err != nil {
		return err
	}
	if err := l.vm.RunAll(); err != nil {
		return fmt.Errorf("could not run forward and backward pass: %v", err)
	}
	defer l.vm.Reset()

	err := l.solver.Step(G.NodesToValueGrads(l.critic.Learnables()))
	if err != nil {
		return fmt.Errorf("could not step solver: %v", err)
	}
	return nil
}

// forward computes the critic's output for the argument input without
// applying a solver step
func (l *Learner) forward(input []float64) ([]float64, error) {
	if err := l.critic.SetInput(input); err != nil {
		return nil, err
	}
	if err := l.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("could not run forward pass: %v", err)
	}
	defer l.vm.Reset()

	out, err := l.critic.OutputData()
	if err != nil {
		return nil, err
	}
	return append([]float64{}, out...), nil
}

// criticInput flattens per-sample (state, action, z) rows into the
// critic's input layout
func (l *Learner) criticInput(states, actions, z []float64,
	size int) []float64 {
	rowSize := l.obsDim + l.actionDim + l.latentDim
	input := make([]float64, 0, size*rowSize)
	for i := 0; i < size; i++ {
		input = append(input, states[i*l.obsDim:(i+1)*l.obsDim]...)
		input = append(input,
			actions[i*l.actionDim:(i+1)*l.actionDim]...)
		input = append(input, z...)
	}
	return input
}

// targetTensor wraps the regression targets as a (batch, 1) tensor
func (l *Learner) targetTensor(targets []float64) G.Value {
	return tensor.New(
		tensor.WithBacking(append([]float64{}, targets...)),
		tensor.WithShape(len(targets), 1),
	)
}
