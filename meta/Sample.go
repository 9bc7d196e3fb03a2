package meta

import (
	"fmt"

	"github.com/metalearn/pearl/expreplay"
)

// CollectData gathers at least numSamples environment steps under the
// active task, starting from the latent prior. Trajectories are never
// split, so the total collected is the smallest multiple of whole
// trajectories at or above the quota. The latent sample is redrawn
// every resampleZRate trajectories, and the posterior is re-inferred
// from the encoder pool every updatePosteriorRate trajectories. Pass
// NoLimit as updatePosteriorRate to keep acting from the prior for the
// whole collection. When addToEncBuffer is set the gathered
// transitions feed the encoder pool as well as the replay pool.
func (a *Algorithm) CollectData(numSamples, resampleZRate,
	updatePosteriorRate int, addToEncBuffer bool) error {
	a.actor.ClearZ()

	replayBuf, err := a.replayPool.At(a.taskIdx)
	if err != nil {
		return fmt.Errorf("collectdata: %v", err)
	}
	buffers := []expreplay.Buffer{replayBuf}
	if addToEncBuffer {
		encBuf, err := a.encoderPool.At(a.taskIdx)
		if err != nil {
			return fmt.Errorf("collectdata: %v", err)
		}
		buffers = append(buffers, encBuf)
	}

	collected := 0
	for collected < numSamples {
		n, cont, err := a.obtainSamples(numSamples-collected,
			updatePosteriorRate, false, resampleZRate, buffers)
		if err != nil {
			return fmt.Errorf("collectdata: %v", err)
		}
		collected += n

		if updatePosteriorRate != NoLimit {
			context, err := a.sampleContext(a.taskIdx)
			if err != nil {
				return fmt.Errorf("collectdata: %v", err)
			}
			if err := a.actor.InferPosterior(context); err != nil {
				return fmt.Errorf("collectdata: %v", err)
			}
		}

		if !cont {
			return nil
		}
	}

	return nil
}

// obtainSamples rolls out the current policy until maxSamples steps or
// maxTrajs trajectories have been gathered, whichever comes first. One
// of the quotas may be NoLimit; both unbounded is an error raised
// before any environment interaction. Trajectories are collected
// whole, each bounded by MaxPathLength, so the step total may
// overshoot maxSamples by up to one trajectory. The latent sample is
// redrawn every resample trajectories. Returns the steps taken and
// whether the step hook allowed collection to continue.
func (a *Algorithm) obtainSamples(maxSamples, maxTrajs int,
	accumContext bool, resample int,
	buffers []expreplay.Buffer) (int, bool, error) {
	if maxSamples == NoLimit && maxTrajs == NoLimit {
		return 0, false, fmt.Errorf("obtainsamples: step and trajectory " +
			"quotas cannot both be unbounded")
	}

	steps := 0
	trajs := 0
	for steps < maxSamples && trajs < maxTrajs {
		ret, err := a.collectRollouts(1, a.conf.MaxPathLength, buffers,
			accumContext)
		if err != nil {
			return steps, false, fmt.Errorf("obtainsamples: %v", err)
		}

		steps += ret.Steps
		trajs += ret.Episodes

		if !ret.ContinueTraining {
			return steps, false, nil
		}
		if resample > 0 && trajs%resample == 0 {
			a.actor.SampleZ()
		}
	}

	return steps, true, nil
}
