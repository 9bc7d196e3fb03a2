// Package meta implements the meta-reinforcement-learning training
// core: per-task sample collection under a latent task belief, replay
// pool management, and the outer meta-training loop
package meta

import (
	"fmt"
	"math"
)

// NoLimit marks a collection quota as unbounded. An unbounded quota is
// only legal when the paired quota is finite, so that collection always
// terminates.
const NoLimit = math.MaxInt

// TrainFrequencyUnit is the unit a training frequency counts in
type TrainFrequencyUnit string

const (
	StepUnit    TrainFrequencyUnit = "step"
	EpisodeUnit TrainFrequencyUnit = "episode"
)

// TrainFreq expresses how often gradient updates run relative to data
// collection
type TrainFreq struct {
	Frequency int
	Unit      TrainFrequencyUnit
}

// ParseTrainFreq validates and returns a training frequency
func ParseTrainFreq(frequency int, unit string) (TrainFreq, error) {
	switch TrainFrequencyUnit(unit) {
	case StepUnit, EpisodeUnit:
	default:
		return TrainFreq{}, fmt.Errorf("parsetrainfreq: unit must be %q or "+
			"%q, got %q", StepUnit, EpisodeUnit, unit)
	}
	if frequency < 1 {
		return TrainFreq{}, fmt.Errorf("parsetrainfreq: frequency must be "+
			">= 1, got %v", frequency)
	}
	return TrainFreq{Frequency: frequency, Unit: TrainFrequencyUnit(unit)}, nil
}

// Config holds the hyperparameters of the meta-training core
type Config struct {
	// Replay storage
	BufferSize     int
	LearningStarts int
	BatchSize      int

	// Discounting and target smoothing
	Gamma float64
	Tau   float64

	TrainFreq TrainFreq

	// Task partition sizes. NEpochTasks is carried on the
	// configuration surface for epoch-based evaluation schedules but
	// no component of the training core consumes it yet.
	NTrainTasks int
	NEvalTasks  int
	NEpochTasks int

	LatentDim int

	// Collection quotas, in environment steps
	NumInitialSteps          int
	NumStepsPrior            int
	NumStepsPosterior        int
	NumExtraRLStepsPosterior int

	// Per-iteration schedule
	NumTrainStepsPerItr int
	NumTasksSample      int
	UpdatePostTrain     int
	MaxPathLength       int

	// Gradient batch shape
	MetaBatch          int
	EmbeddingBatchSize int

	// State-dependent exploration
	UseSDE         bool
	UseSDEAtWarmup bool
	SDESampleFreq  int

	Seed uint64
}

// DefaultConfig returns the canonical hyperparameter values
func DefaultConfig() Config {
	return Config{
		BufferSize:     1_000_000,
		LearningStarts: 100,
		BatchSize:      256,

		Gamma: 0.99,
		Tau:   0.005,

		TrainFreq: TrainFreq{Frequency: 1, Unit: StepUnit},

		NTrainTasks: 10,
		NEvalTasks:  5,
		NEpochTasks: 5,

		LatentDim: 5,

		NumInitialSteps:          1000,
		NumStepsPrior:            200,
		NumStepsPosterior:        0,
		NumExtraRLStepsPosterior: 300,

		NumTrainStepsPerItr: 2000,
		NumTasksSample:      5,
		UpdatePostTrain:     1,
		MaxPathLength:       100,

		MetaBatch:          16,
		EmbeddingBatchSize: 64,

		UseSDE:         false,
		UseSDEAtWarmup: false,
		SDESampleFreq:  -1,

		Seed: 0,
	}
}

// Validate checks the configuration for values that would make
// training ill-defined
func (c Config) Validate() error {
	if c.BufferSize < 1 {
		return fmt.Errorf("validate: BufferSize must be >= 1, got %v",
			c.BufferSize)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: BatchSize must be >= 1, got %v",
			c.BatchSize)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: Gamma must be in [0, 1], got %v", c.Gamma)
	}
	if c.NTrainTasks < 0 || c.NEvalTasks < 0 || c.NEpochTasks < 0 {
		return fmt.Errorf("validate: task counts must be >= 0 \n\thave(%v, "+
			"%v, %v)", c.NTrainTasks, c.NEvalTasks, c.NEpochTasks)
	}
	if c.LatentDim < 1 {
		return fmt.Errorf("validate: LatentDim must be >= 1, got %v",
			c.LatentDim)
	}
	if c.MaxPathLength < 1 {
		return fmt.Errorf("validate: MaxPathLength must be >= 1, got %v",
			c.MaxPathLength)
	}
	if c.MetaBatch < 1 {
		return fmt.Errorf("validate: MetaBatch must be >= 1, got %v",
			c.MetaBatch)
	}
	if c.EmbeddingBatchSize < 1 {
		return fmt.Errorf("validate: EmbeddingBatchSize must be >= 1, got %v",
			c.EmbeddingBatchSize)
	}
	if c.NumTasksSample < 0 {
		return fmt.Errorf("validate: NumTasksSample must be >= 0, got %v",
			c.NumTasksSample)
	}
	if c.UpdatePostTrain < 1 {
		return fmt.Errorf("validate: UpdatePostTrain must be >= 1, got %v",
			c.UpdatePostTrain)
	}
	return nil
}
