package meta

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/metalearn/pearl/callback"
	"github.com/metalearn/pearl/environment"
	"github.com/metalearn/pearl/expreplay"
	"github.com/metalearn/pearl/timestep"
)

// fakeEnv is a deterministic multi-task environment whose episodes
// last exactly epLen steps with reward 1 per step
type fakeEnv struct {
	epLen     int
	instances int
	numTasks  int

	taskIdx        int
	resetTaskCalls []int
	resets         int
	steps          int
	stepInEp       int
}

func newFakeEnv(numTasks, epLen int) *fakeEnv {
	return &fakeEnv{epLen: epLen, instances: 1, numTasks: numTasks}
}

func (f *fakeEnv) obs() mat.Vector {
	return mat.NewVecDense(2, []float64{float64(f.stepInEp), 0})
}

func (f *fakeEnv) Start() mat.Vector { return mat.NewVecDense(2, nil) }

func (f *fakeEnv) End(t *timestep.TimeStep) bool { return t.Last() }

func (f *fakeEnv) GetReward(state, action, next mat.Vector) float64 {
	return 1.0
}

func (f *fakeEnv) AtGoal(state mat.Matrix) bool { return false }

func (f *fakeEnv) Min() float64 { return 0.0 }

func (f *fakeEnv) Max() float64 { return 1.0 }

func (f *fakeEnv) RewardSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lower := mat.NewVecDense(1, []float64{f.Min()})
	upper := mat.NewVecDense(1, []float64{f.Max()})
	return environment.NewSpec(shape, environment.Reward, lower, upper,
		environment.Continuous)
}

func (f *fakeEnv) Reset() timestep.TimeStep {
	f.resets++
	f.stepInEp = 0
	return timestep.New(timestep.First, 0, 1.0, f.obs(), 0)
}

func (f *fakeEnv) Step(action *mat.VecDense) (timestep.TimeStep, bool) {
	f.steps++
	f.stepInEp++

	stepType := timestep.Mid
	if f.stepInEp >= f.epLen {
		stepType = timestep.Last
	}
	step := timestep.New(stepType, 1.0, 1.0, f.obs(), f.stepInEp)
	return step, step.Last()
}

func (f *fakeEnv) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{1.0})
	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}

func (f *fakeEnv) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(2, nil)
	lower := mat.NewVecDense(2, []float64{-1, -1})
	upper := mat.NewVecDense(2, []float64{1, 1})
	return environment.NewSpec(shape, environment.Observation, lower, upper,
		environment.Continuous)
}

func (f *fakeEnv) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lower := mat.NewVecDense(1, []float64{-2})
	upper := mat.NewVecDense(1, []float64{2})
	return environment.NewSpec(shape, environment.Action, lower, upper,
		environment.Continuous)
}

func (f *fakeEnv) ResetTask(idx int) error {
	if idx < 0 || idx >= f.numTasks {
		return fmt.Errorf("resettask: task index %v out of range [0, %v)",
			idx, f.numTasks)
	}
	f.resetTaskCalls = append(f.resetTaskCalls, idx)
	f.taskIdx = idx
	return nil
}

func (f *fakeEnv) TaskIndex() int { return f.taskIdx }

func (f *fakeEnv) NumTasks() int { return f.numTasks }

func (f *fakeEnv) NumInstances() int { return f.instances }

// fakeActor records every call the training core makes on the actor
// interface
type fakeActor struct {
	actions    int
	sampleZ    int
	clearZ     int
	resetNoise int
	contexts   int

	// inferred holds the context batch size of each posterior update
	inferred []int
}

func (f *fakeActor) GetAction(obs mat.Vector,
	deterministic bool) (*mat.VecDense, error) {
	f.actions++
	return mat.NewVecDense(1, []float64{0.5}), nil
}

func (f *fakeActor) SampleZ() { f.sampleZ++ }

func (f *fakeActor) ClearZ() { f.clearZ++ }

func (f *fakeActor) InferPosterior(context expreplay.Batch) error {
	f.inferred = append(f.inferred, context.Size)
	return nil
}

func (f *fakeActor) UpdateContext(t timestep.Transition) { f.contexts++ }

func (f *fakeActor) ResetNoise() { f.resetNoise++ }

func (f *fakeActor) ZMeans() mat.Vector { return mat.NewVecDense(1, nil) }

func (f *fakeActor) ZVars() mat.Vector { return mat.NewVecDense(1, nil) }

// fakeLearner records the task indices of every gradient update
type fakeLearner struct {
	batches [][]int
	err     error
}

func (f *fakeLearner) TrainStep(taskIndices []int) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]int{}, taskIndices...))
	return nil
}

// cancelCallback cancels collection on the after'th step
type cancelCallback struct {
	callback.NoOp
	after int
	steps int
}

func (c *cancelCallback) OnStep() (bool, error) {
	c.steps++
	if c.steps >= c.after {
		return false, nil
	}
	return true, nil
}

// localsCallback records every rollout-state snapshot it is offered
type localsCallback struct {
	callback.NoOp
	snapshots []callback.Locals
}

func (c *localsCallback) UpdateLocals(l callback.Locals) {
	c.snapshots = append(c.snapshots, l)
}

// testConfig returns a small configuration with all collection and
// training quotas zeroed; tests enable what they exercise
func testConfig() Config {
	conf := DefaultConfig()
	conf.BufferSize = 1000
	conf.LearningStarts = 0
	conf.BatchSize = 4
	conf.NTrainTasks = 2
	conf.NEvalTasks = 0
	conf.LatentDim = 3

	conf.NumInitialSteps = 0
	conf.NumStepsPrior = 0
	conf.NumStepsPosterior = 0
	conf.NumExtraRLStepsPosterior = 0
	conf.NumTrainStepsPerItr = 0
	conf.NumTasksSample = 0

	conf.MaxPathLength = 100
	conf.MetaBatch = 4
	conf.EmbeddingBatchSize = 16
	return conf
}
