package meta

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalearn/pearl/callback"
	"github.com/metalearn/pearl/expreplay"
)

func newTestAlgorithm(t *testing.T, conf Config, env *fakeEnv,
	actor *fakeActor, learner *fakeLearner,
	call callback.Callback) *Algorithm {
	t.Helper()
	alg, err := New(conf, env, actor, learner, call, nil, nil)
	require.NoError(t, err)
	return alg
}

func TestNewRejectsMultipleInstances(t *testing.T) {
	env := newFakeEnv(2, 100)
	env.instances = 4

	_, err := New(testConfig(), env, &fakeActor{}, &fakeLearner{}, nil, nil,
		nil)
	assert.Error(t, err)
}

func TestNewRejectsOversizedTaskPartition(t *testing.T) {
	conf := testConfig()
	conf.NTrainTasks = 3
	conf.NEvalTasks = 2

	_, err := New(conf, newFakeEnv(4, 100), &fakeActor{}, &fakeLearner{},
		nil, nil, nil)
	assert.Error(t, err)
}

func TestNewBuildsPerTaskPools(t *testing.T) {
	conf := testConfig()
	conf.NEvalTasks = 1
	alg := newTestAlgorithm(t, conf, newFakeEnv(3, 100), &fakeActor{},
		&fakeLearner{}, nil)

	assert.Equal(t, conf.NTrainTasks, alg.ReplayPool().NumTasks())
	assert.Equal(t, conf.NTrainTasks, alg.EncoderPool().NumTasks())
	assert.Equal(t, conf.NEvalTasks, alg.EvalPool().NumTasks())
}

func TestObtainSamplesBothQuotasUnbounded(t *testing.T) {
	env := newFakeEnv(2, 100)
	alg := newTestAlgorithm(t, testConfig(), env, &fakeActor{},
		&fakeLearner{}, nil)

	_, _, err := alg.obtainSamples(NoLimit, NoLimit, false, 1, nil)
	require.Error(t, err)
	// The error must be raised before any environment interaction
	assert.Equal(t, 0, env.steps)
}

func TestCollectDataStepQuota(t *testing.T) {
	env := newFakeEnv(2, 100)
	actor := &fakeActor{}
	alg := newTestAlgorithm(t, testConfig(), env, actor, &fakeLearner{}, nil)

	require.NoError(t, alg.CollectData(200, 1, NoLimit, true))

	assert.Equal(t, 200, alg.Session().EnvSteps)
	assert.Equal(t, 200, env.steps)
	assert.Equal(t, 2, env.resets)
	assert.Equal(t, 2, alg.Session().Episodes)

	// Prior collection starts from a cleared belief, resamples every
	// trajectory, and never infers the posterior
	assert.Equal(t, 1, actor.clearZ)
	assert.Equal(t, 2, actor.sampleZ)
	assert.Empty(t, actor.inferred)

	replayBuf, err := alg.ReplayPool().At(0)
	require.NoError(t, err)
	assert.Equal(t, 200, replayBuf.Capacity())

	encBuf, err := alg.EncoderPool().At(0)
	require.NoError(t, err)
	assert.Equal(t, 200, encBuf.Capacity())
	assert.Equal(t, 200, encBuf.Pos())
}

func TestCollectDataPosteriorCadence(t *testing.T) {
	conf := testConfig()
	env := newFakeEnv(2, 100)
	actor := &fakeActor{}
	alg := newTestAlgorithm(t, conf, env, actor, &fakeLearner{}, nil)

	require.NoError(t, alg.CollectData(200, 1, 1, true))

	assert.Equal(t, 200, alg.Session().EnvSteps)

	// A posterior rate of 1 re-infers after every trajectory, each
	// time from an embedding-sized context batch
	require.Len(t, actor.inferred, 2)
	for _, size := range actor.inferred {
		assert.Equal(t, conf.EmbeddingBatchSize, size)
	}
}

func TestCollectDataSkipsEncoderBuffer(t *testing.T) {
	env := newFakeEnv(2, 100)
	alg := newTestAlgorithm(t, testConfig(), env, &fakeActor{},
		&fakeLearner{}, nil)

	require.NoError(t, alg.CollectData(100, 1, NoLimit, false))

	replayBuf, err := alg.ReplayPool().At(0)
	require.NoError(t, err)
	assert.Equal(t, 100, replayBuf.Capacity())

	encBuf, err := alg.EncoderPool().At(0)
	require.NoError(t, err)
	assert.Equal(t, 0, encBuf.Capacity())
}

func TestCollectDataWholeTrajectories(t *testing.T) {
	// A quota that is not a multiple of the episode length overshoots
	// with a whole final trajectory rather than splitting it
	env := newFakeEnv(2, 100)
	alg := newTestAlgorithm(t, testConfig(), env, &fakeActor{},
		&fakeLearner{}, nil)

	require.NoError(t, alg.CollectData(250, 1, NoLimit, true))

	assert.Equal(t, 300, alg.Session().EnvSteps)
	assert.Equal(t, 300, env.steps)
	assert.Equal(t, 3, alg.Session().Episodes)
	assert.Zero(t, alg.Session().EnvSteps%testConfig().MaxPathLength)
}

func TestCollectRolloutsEpisodeQuota(t *testing.T) {
	env := newFakeEnv(2, 10)
	actor := &fakeActor{}
	alg := newTestAlgorithm(t, testConfig(), env, actor, &fakeLearner{}, nil)

	buf, err := alg.ReplayPool().At(0)
	require.NoError(t, err)

	ret, err := alg.collectRollouts(2, NoLimit,
		[]expreplay.Buffer{buf}, false)
	require.NoError(t, err)

	assert.Equal(t, 20, ret.Steps)
	assert.Equal(t, 2, ret.Episodes)
	assert.Equal(t, 10.0, ret.MeanReward)
	assert.True(t, ret.ContinueTraining)
	assert.Equal(t, 0, actor.contexts)
}

func TestCollectRolloutsAccumulatesContext(t *testing.T) {
	env := newFakeEnv(2, 10)
	actor := &fakeActor{}
	alg := newTestAlgorithm(t, testConfig(), env, actor, &fakeLearner{}, nil)

	buf, err := alg.ReplayPool().At(0)
	require.NoError(t, err)

	_, err = alg.collectRollouts(1, NoLimit, []expreplay.Buffer{buf}, true)
	require.NoError(t, err)
	assert.Equal(t, 10, actor.contexts)
}

func TestCollectRolloutsBothQuotasUnbounded(t *testing.T) {
	env := newFakeEnv(2, 10)
	alg := newTestAlgorithm(t, testConfig(), env, &fakeActor{},
		&fakeLearner{}, nil)

	_, err := alg.collectRollouts(NoLimit, NoLimit, nil, false)
	require.Error(t, err)
	assert.Equal(t, 0, env.steps)
}

func TestCollectRolloutsOffersLocals(t *testing.T) {
	env := newFakeEnv(2, 10)
	call := &localsCallback{}
	alg := newTestAlgorithm(t, testConfig(), env, &fakeActor{},
		&fakeLearner{}, call)

	buf, err := alg.ReplayPool().At(0)
	require.NoError(t, err)

	_, err = alg.collectRollouts(1, NoLimit, []expreplay.Buffer{buf}, false)
	require.NoError(t, err)

	// One snapshot per step plus one before the rollout-end hook
	require.Len(t, call.snapshots, 11)

	last := call.snapshots[9]
	assert.Equal(t, 10, last.TotalSteps)
	assert.Equal(t, 10, last.EpisodeSteps)
	assert.Equal(t, 0, last.Episodes)

	final := call.snapshots[10]
	assert.Equal(t, 10, final.TotalSteps)
	assert.Equal(t, 1, final.Episodes)
}

func TestSDEResampleCadence(t *testing.T) {
	conf := testConfig()
	conf.UseSDE = true
	conf.SDESampleFreq = 3

	env := newFakeEnv(2, 4)
	actor := &fakeActor{}
	alg := newTestAlgorithm(t, conf, env, actor, &fakeLearner{}, nil)

	buf, err := alg.ReplayPool().At(0)
	require.NoError(t, err)

	_, err = alg.collectRollouts(2, NoLimit, []expreplay.Buffer{buf}, false)
	require.NoError(t, err)

	// One reset on entry, then one every SDESampleFreq steps of the
	// whole collection (steps 0, 3, and 6 of 8), spanning episode
	// boundaries
	assert.Equal(t, 4, actor.resetNoise)
}

func TestCancellationMidEpisode(t *testing.T) {
	env := newFakeEnv(2, 100)
	call := &cancelCallback{after: 5}
	alg := newTestAlgorithm(t, testConfig(), env, &fakeActor{},
		&fakeLearner{}, call)

	buf, err := alg.ReplayPool().At(0)
	require.NoError(t, err)

	ret, err := alg.collectRollouts(1, 100, []expreplay.Buffer{buf}, false)
	require.NoError(t, err)

	assert.False(t, ret.ContinueTraining)
	assert.Equal(t, 5, ret.Steps)
	assert.Equal(t, 0, ret.Episodes)
	assert.Equal(t, 0.0, ret.MeanReward)

	// The abandoned partial episode leaves no episode statistics
	assert.Equal(t, 0, alg.Session().Episodes)
	assert.Equal(t, 5, alg.Session().EnvSteps)
}

func TestCancellationStopsCollectData(t *testing.T) {
	env := newFakeEnv(2, 100)
	call := &cancelCallback{after: 5}
	alg := newTestAlgorithm(t, testConfig(), env, &fakeActor{},
		&fakeLearner{}, call)

	require.NoError(t, alg.CollectData(200, 1, NoLimit, true))
	assert.Equal(t, 5, alg.Session().EnvSteps)
}

func TestLearnBootstrapRunsOncePerRun(t *testing.T) {
	conf := testConfig()
	conf.NumInitialSteps = 100

	env := newFakeEnv(2, 100)
	alg := newTestAlgorithm(t, conf, env, &fakeActor{}, &fakeLearner{}, nil)

	require.NoError(t, alg.Learn(2))

	// One bootstrap visit per training task, and only on the first
	// iteration
	assert.Equal(t, []int{0, 1}, env.resetTaskCalls)
	assert.Equal(t, 200, alg.Session().EnvSteps)
	assert.True(t, alg.Session().InitialExperience)
}

func TestLearnThreePhaseCollection(t *testing.T) {
	conf := testConfig()
	conf.NumTasksSample = 1
	conf.NumStepsPrior = 100
	conf.NumStepsPosterior = 100
	conf.NumExtraRLStepsPosterior = 100
	conf.UpdatePostTrain = 1

	env := newFakeEnv(2, 100)
	actor := &fakeActor{}
	alg := newTestAlgorithm(t, conf, env, actor, &fakeLearner{}, nil)

	require.NoError(t, alg.Learn(1))

	assert.Equal(t, 300, alg.Session().EnvSteps)

	// Each phase restarts from the prior
	assert.Equal(t, 3, actor.clearZ)

	// The posterior phases infer once per trajectory; the prior phase
	// never does
	assert.Len(t, actor.inferred, 2)

	// Only the prior and posterior phases feed the encoder buffer
	taskIdx := env.resetTaskCalls[len(env.resetTaskCalls)-1]
	encBuf, err := alg.EncoderPool().At(taskIdx)
	require.NoError(t, err)
	assert.Equal(t, 200, encBuf.Capacity())

	replayBuf, err := alg.ReplayPool().At(taskIdx)
	require.NoError(t, err)
	assert.Equal(t, 300, replayBuf.Capacity())
}

func TestLearnTrainSteps(t *testing.T) {
	conf := testConfig()
	conf.NumTrainStepsPerItr = 3

	learner := &fakeLearner{}
	alg := newTestAlgorithm(t, conf, newFakeEnv(2, 100), &fakeActor{},
		learner, nil)

	require.NoError(t, alg.Learn(2))

	require.Len(t, learner.batches, 6)
	for _, batch := range learner.batches {
		require.Len(t, batch, conf.MetaBatch)
		for _, idx := range batch {
			assert.GreaterOrEqual(t, idx, 0)
			assert.Less(t, idx, conf.NTrainTasks)
		}
	}
	assert.Equal(t, 6, alg.Session().TrainSteps)
}

func TestLearnPropagatesLearnerError(t *testing.T) {
	conf := testConfig()
	conf.NumTrainStepsPerItr = 1

	learner := &fakeLearner{err: errors.New("diverged")}
	alg := newTestAlgorithm(t, conf, newFakeEnv(2, 100), &fakeActor{},
		learner, nil)

	assert.Error(t, alg.Learn(1))
}

func TestLearnEmptyTaskSet(t *testing.T) {
	conf := testConfig()
	conf.NTrainTasks = 0
	conf.NumTasksSample = 1

	alg := newTestAlgorithm(t, conf, newFakeEnv(2, 100), &fakeActor{},
		&fakeLearner{}, nil)

	err := alg.Learn(1)
	assert.True(t, errors.Is(err, ErrNoTasks))
}

func TestLearnRejectsNonPositiveIterations(t *testing.T) {
	alg := newTestAlgorithm(t, testConfig(), newFakeEnv(2, 100),
		&fakeActor{}, &fakeLearner{}, nil)

	assert.Error(t, alg.Learn(0))
	assert.Error(t, alg.Learn(-1))
}

func TestLearnRequiresLearner(t *testing.T) {
	conf := testConfig()
	conf.NumTrainStepsPerItr = 1

	alg, err := New(conf, newFakeEnv(2, 100), &fakeActor{}, nil, nil, nil,
		nil)
	require.NoError(t, err)

	assert.Error(t, alg.Learn(1))

	alg.SetLearner(&fakeLearner{})
	assert.NoError(t, alg.Learn(1))
}

func TestResetBuffers(t *testing.T) {
	env := newFakeEnv(2, 100)
	alg := newTestAlgorithm(t, testConfig(), env, &fakeActor{},
		&fakeLearner{}, nil)

	require.NoError(t, alg.CollectData(100, 1, NoLimit, true))
	require.NoError(t, alg.ResetBuffers())

	for i := 0; i < alg.ReplayPool().NumTasks(); i++ {
		buf, err := alg.ReplayPool().At(i)
		require.NoError(t, err)
		assert.Equal(t, 0, buf.Capacity())

		buf, err = alg.EncoderPool().At(i)
		require.NoError(t, err)
		assert.Equal(t, 0, buf.Capacity())
	}
}

func TestPersistenceStubsFailLoudly(t *testing.T) {
	alg := newTestAlgorithm(t, testConfig(), newFakeEnv(2, 100),
		&fakeActor{}, &fakeLearner{}, nil)

	assert.True(t, errors.Is(alg.SaveReplayBuffers("buffers.bin"),
		ErrPersistenceUnsupported))
	assert.True(t, errors.Is(alg.LoadReplayBuffers("buffers.bin"),
		ErrPersistenceUnsupported))
}

func TestSampleActionWarmup(t *testing.T) {
	conf := testConfig()
	conf.LearningStarts = 10

	env := newFakeEnv(2, 5)
	actor := &fakeActor{}
	alg := newTestAlgorithm(t, conf, env, actor, &fakeLearner{}, nil)

	require.NoError(t, alg.CollectData(20, 1, NoLimit, false))

	// The first LearningStarts steps act uniformly at random; the
	// policy selects the rest
	assert.Equal(t, 10, actor.actions)
	assert.Equal(t, 20, alg.Session().EnvSteps)
}

func TestSetTaskPropagatesEnvironmentError(t *testing.T) {
	alg := newTestAlgorithm(t, testConfig(), newFakeEnv(2, 100),
		&fakeActor{}, &fakeLearner{}, nil)

	assert.Error(t, alg.setTask(5))
	assert.NoError(t, alg.setTask(1))
	assert.Equal(t, 1, alg.taskIdx)
}
