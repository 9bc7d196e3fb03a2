package meta

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/metalearn/pearl/agent"
	"github.com/metalearn/pearl/callback"
	"github.com/metalearn/pearl/environment"
	"github.com/metalearn/pearl/expreplay"
	"github.com/metalearn/pearl/logger"
	"github.com/metalearn/pearl/noise"
	"github.com/metalearn/pearl/utils/floatutils"
)

// ErrPersistenceUnsupported is returned by the replay buffer
// save and load entry points, which are declared but not implemented
var ErrPersistenceUnsupported = errors.New("replay buffer persistence " +
	"is not supported")

// ErrNoTasks is returned when a task must be sampled from an empty
// training task set
var ErrNoTasks = errors.New("no training tasks to sample from")

// Algorithm wires the meta-training collaborators together: the
// multi-task environment, the context-conditioned actor, the gradient
// learner, the per-task replay pools, and the observation hooks. All
// mutable run state lives in the Session.
type Algorithm struct {
	conf Config

	env     environment.MultiTask
	actor   agent.Actor
	learner agent.MetaLearner

	call        callback.Callback
	rec         *logger.Recorder
	actionNoise noise.ActionNoise

	// replayPool feeds gradient updates, encoderPool feeds posterior
	// inference, evalPool holds held-out task experience
	replayPool  *expreplay.Pool
	encoderPool *expreplay.Pool
	evalPool    *expreplay.Pool

	session *Session
	taskIdx int

	rng *rand.Rand
}

// New creates and returns a new Algorithm. The callback, recorder,
// and action noise arguments may be nil.
func New(conf Config, env environment.MultiTask, actor agent.Actor,
	learner agent.MetaLearner, call callback.Callback, rec *logger.Recorder,
	actionNoise noise.ActionNoise) (*Algorithm, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid configuration: %v", err)
	}
	if env.NumInstances() != 1 {
		return nil, fmt.Errorf("new: training requires exactly 1 environment "+
			"instance, got %v", env.NumInstances())
	}
	if conf.NTrainTasks+conf.NEvalTasks > env.NumTasks() {
		return nil, fmt.Errorf("new: task partition needs %v tasks but the "+
			"environment has %v", conf.NTrainTasks+conf.NEvalTasks,
			env.NumTasks())
	}

	a := &Algorithm{
		conf: conf,

		env:     env,
		actor:   actor,
		learner: learner,

		call:        call,
		rec:         rec,
		actionNoise: actionNoise,

		session: NewSession(),

		rng: rand.New(rand.NewSource(conf.Seed)),
	}
	if err := a.setupPools(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return a, nil
}

// setupPools constructs the per-task replay and encoder pools from the
// environment's observation and action shapes
func (a *Algorithm) setupPools() error {
	obsDim := a.env.ObservationSpec().Shape.Len()
	actionDim := a.env.ActionSpec().Shape.Len()

	var err error
	a.replayPool, err = expreplay.NewPool(a.conf.NTrainTasks,
		a.conf.BufferSize, obsDim, actionDim, a.conf.Seed)
	if err != nil {
		return fmt.Errorf("could not create replay pool: %v", err)
	}

	a.encoderPool, err = expreplay.NewPool(a.conf.NTrainTasks,
		a.conf.BufferSize, obsDim, actionDim, a.conf.Seed+1)
	if err != nil {
		return fmt.Errorf("could not create encoder pool: %v", err)
	}

	a.evalPool, err = expreplay.NewPool(a.conf.NEvalTasks,
		a.conf.BufferSize, obsDim, actionDim, a.conf.Seed+2)
	if err != nil {
		return fmt.Errorf("could not create evaluation pool: %v", err)
	}

	return nil
}

// SetLearner replaces the gradient learner. Learners that read the
// replay pools are constructed after the Algorithm owns them, so this
// completes the wiring before Learn is called.
func (a *Algorithm) SetLearner(l agent.MetaLearner) {
	a.learner = l
}

// Session returns the run's progress counters
func (a *Algorithm) Session() *Session {
	return a.session
}

// ReplayPool returns the per-task gradient replay pool
func (a *Algorithm) ReplayPool() *expreplay.Pool {
	return a.replayPool
}

// EncoderPool returns the per-task context replay pool
func (a *Algorithm) EncoderPool() *expreplay.Pool {
	return a.encoderPool
}

// EvalPool returns the held-out evaluation task pool
func (a *Algorithm) EvalPool() *expreplay.Pool {
	return a.evalPool
}

// ResetBuffers discards all stored experience in every pool
func (a *Algorithm) ResetBuffers() error {
	if err := a.replayPool.Reset(); err != nil {
		return fmt.Errorf("resetbuffers: %v", err)
	}
	if err := a.encoderPool.Reset(); err != nil {
		return fmt.Errorf("resetbuffers: %v", err)
	}
	if err := a.evalPool.Reset(); err != nil {
		return fmt.Errorf("resetbuffers: %v", err)
	}
	return nil
}

// SaveReplayBuffers is declared for interface parity with other
// off-policy training cores. Per-task pool persistence is not
// implemented, and the failure is loud rather than silent.
func (a *Algorithm) SaveReplayBuffers(path string) error {
	return fmt.Errorf("savereplaybuffers: %q: %w", path,
		ErrPersistenceUnsupported)
}

// LoadReplayBuffers is declared for interface parity with other
// off-policy training cores and always fails loudly
func (a *Algorithm) LoadReplayBuffers(path string) error {
	return fmt.Errorf("loadreplaybuffers: %q: %w", path,
		ErrPersistenceUnsupported)
}

// setTask switches the environment to the argument task index
func (a *Algorithm) setTask(idx int) error {
	if err := a.env.ResetTask(idx); err != nil {
		return fmt.Errorf("settask: %v", err)
	}
	a.taskIdx = idx
	return nil
}

// sampleTask draws a uniformly random training task index
func (a *Algorithm) sampleTask() (int, error) {
	if a.conf.NTrainTasks == 0 {
		return 0, fmt.Errorf("sampletask: %w", ErrNoTasks)
	}
	return a.rng.Intn(a.conf.NTrainTasks), nil
}

// sampleMetaBatch draws MetaBatch training task indices uniformly with
// replacement
func (a *Algorithm) sampleMetaBatch() ([]int, error) {
	if a.conf.NTrainTasks == 0 {
		return nil, fmt.Errorf("samplemetabatch: %w", ErrNoTasks)
	}
	indices := make([]int, a.conf.MetaBatch)
	for i := range indices {
		indices[i] = a.rng.Intn(a.conf.NTrainTasks)
	}
	return indices, nil
}

// sampleContext samples an embedding batch of context transitions for
// the argument task from the encoder pool
func (a *Algorithm) sampleContext(idx int) (expreplay.Batch, error) {
	buf, err := a.encoderPool.At(idx)
	if err != nil {
		return expreplay.Batch{}, fmt.Errorf("samplecontext: %v", err)
	}
	batch, err := buf.Sample(a.conf.EmbeddingBatchSize)
	if err != nil {
		return expreplay.Batch{}, fmt.Errorf("samplecontext: could not "+
			"sample context for task %v: %v", idx, err)
	}
	return batch, nil
}

// sampleAction selects the next behaviour action. Before
// LearningStarts steps the action is uniform random over the action
// space unless SDE exploration is requested at warmup; afterwards the
// actor's stochastic policy selects it. Additive action noise, when
// configured, is applied and the result clipped to the action bounds.
func (a *Algorithm) sampleAction(obs mat.Vector) (*mat.VecDense, error) {
	warmup := a.session.EnvSteps < a.conf.LearningStarts &&
		!(a.conf.UseSDE && a.conf.UseSDEAtWarmup)

	var action *mat.VecDense
	if warmup {
		action = a.randomAction()
	} else {
		var err error
		action, err = a.actor.GetAction(obs, false)
		if err != nil {
			return nil, fmt.Errorf("sampleaction: %v", err)
		}
	}

	if a.actionNoise != nil {
		action.AddVec(action, a.actionNoise.Sample())

		spec := a.env.ActionSpec()
		for i := 0; i < action.Len(); i++ {
			action.SetVec(i, floatutils.Clip(action.AtVec(i),
				spec.LowerBound.AtVec(i), spec.UpperBound.AtVec(i)))
		}
	}

	return action, nil
}

// randomAction draws an action uniformly from the action bounds
func (a *Algorithm) randomAction() *mat.VecDense {
	spec := a.env.ActionSpec()
	action := make([]float64, spec.Shape.Len())
	for i := range action {
		low := spec.LowerBound.AtVec(i)
		high := spec.UpperBound.AtVec(i)
		action[i] = low + a.rng.Float64()*(high-low)
	}
	return mat.NewVecDense(len(action), action)
}

// dumpLogs flushes the rolling training metrics through the recorder
func (a *Algorithm) dumpLogs() {
	if a.rec == nil {
		return
	}
	a.rec.Record("time/episodes", a.session.Episodes)
	a.rec.Record("rollout/ep_rew_mean", a.session.MeanEpisodeReward())
	a.rec.Record("rollout/ep_len_mean", a.session.MeanEpisodeLength())
	a.rec.Record("time/fps", a.session.FPS())
	a.rec.Record("time/total_timesteps", a.session.EnvSteps)
	a.rec.Dump(a.session.EnvSteps)
}
