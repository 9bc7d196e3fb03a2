package meta

import (
	"fmt"

	"github.com/metalearn/pearl/callback"
)

// Learn runs numIterations meta-training iterations. Each iteration
// gathers fresh experience for a sampled subset of training tasks in
// three phases (acting from the prior, acting from the posterior, and
// extra policy-only data) and then performs NumTrainStepsPerItr
// gradient updates over sampled meta-batches. The first iteration is
// preceded by a once-per-run bootstrap that seeds every training
// task's buffers from the prior.
func (a *Algorithm) Learn(numIterations int) error {
	if numIterations < 1 {
		return fmt.Errorf("learn: numIterations must be >= 1, got %v",
			numIterations)
	}

	if a.call != nil {
		callback.Notify(a.call.OnTrainingStart)
	}

	for itr := 0; itr < numIterations; itr++ {
		if err := a.collectIteration(); err != nil {
			return fmt.Errorf("learn: %w", err)
		}
		if err := a.trainIteration(); err != nil {
			return fmt.Errorf("learn: %w", err)
		}
		a.dumpLogs()
	}

	if a.call != nil {
		callback.Notify(a.call.OnTrainingEnd)
	}
	return nil
}

// collectIteration gathers the data for one iteration: the
// once-per-run bootstrap if it has not happened, then the three-phase
// collection for NumTasksSample randomly drawn training tasks
func (a *Algorithm) collectIteration() error {
	if !a.session.InitialExperience && a.conf.NumInitialSteps > 0 {
		for idx := 0; idx < a.conf.NTrainTasks; idx++ {
			if err := a.setTask(idx); err != nil {
				return err
			}
			err := a.CollectData(a.conf.NumInitialSteps, 1, NoLimit, true)
			if err != nil {
				return err
			}
		}
		a.session.InitialExperience = true
	}

	for round := 0; round < a.conf.NumTasksSample; round++ {
		idx, err := a.sampleTask()
		if err != nil {
			return err
		}
		if err := a.setTask(idx); err != nil {
			return err
		}

		// The encoder buffer restarts per visit so posterior
		// inference only sees context from the current policy
		encBuf, err := a.encoderPool.At(idx)
		if err != nil {
			return err
		}
		encBuf.Reset()

		if a.conf.NumStepsPrior > 0 {
			err := a.CollectData(a.conf.NumStepsPrior, 1, NoLimit, true)
			if err != nil {
				return err
			}
		}
		if a.conf.NumStepsPosterior > 0 {
			err := a.CollectData(a.conf.NumStepsPosterior, 1,
				a.conf.UpdatePostTrain, true)
			if err != nil {
				return err
			}
		}
		if a.conf.NumExtraRLStepsPosterior > 0 {
			err := a.CollectData(a.conf.NumExtraRLStepsPosterior, 1,
				a.conf.UpdatePostTrain, false)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// trainIteration performs the gradient updates of one iteration
func (a *Algorithm) trainIteration() error {
	if a.learner == nil {
		return fmt.Errorf("no learner has been set")
	}
	for step := 0; step < a.conf.NumTrainStepsPerItr; step++ {
		indices, err := a.sampleMetaBatch()
		if err != nil {
			return err
		}
		if err := a.learner.TrainStep(indices); err != nil {
			return fmt.Errorf("could not perform gradient update %v: %v",
				a.session.TrainSteps, err)
		}
		a.session.TrainSteps++
	}
	return nil
}
