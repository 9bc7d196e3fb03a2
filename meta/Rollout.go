package meta

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/metalearn/pearl/callback"
	"github.com/metalearn/pearl/expreplay"
	"github.com/metalearn/pearl/timestep"
)

// RolloutReturn summarizes one rollout collection
type RolloutReturn struct {
	// MeanReward is the mean return over the completed episodes, or 0
	// when no episode completed
	MeanReward float64

	// Steps is the number of environment steps actually taken,
	// including any partial episode
	Steps int

	// Episodes is the number of episodes that finished or were
	// truncated by the step quota
	Episodes int

	// ContinueTraining is false when the step hook cancelled
	// collection
	ContinueTraining bool
}

// collectRollouts interacts with the environment under the current
// task and latent sample until nEpisodes episodes finish or nSteps
// steps have been taken, whichever comes first. Every transition is
// added to each argument buffer; when accumContext is set it is also
// appended to the actor's running context. Either quota may be NoLimit
// but not both.
//
// This is the only place environment steps are counted: each step
// increments the session counter exactly once, and callers read
// Steps off the return rather than recounting.
func (a *Algorithm) collectRollouts(nEpisodes, nSteps int,
	buffers []expreplay.Buffer, accumContext bool) (RolloutReturn, error) {
	if a.env.NumInstances() != 1 {
		return RolloutReturn{}, fmt.Errorf("collectrollouts: training "+
			"requires exactly 1 environment instance, got %v",
			a.env.NumInstances())
	}
	if nEpisodes == NoLimit && nSteps == NoLimit {
		return RolloutReturn{}, fmt.Errorf("collectrollouts: episode and " +
			"step quotas cannot both be unbounded")
	}

	if a.conf.UseSDE {
		a.actor.ResetNoise()
	}
	if a.call != nil {
		callback.Notify(a.call.OnRolloutStart)
	}

	var episodeRewards []float64
	totalSteps := 0
	totalEpisodes := 0

	for totalEpisodes < nEpisodes && totalSteps < nSteps {
		step := a.env.Reset()
		episodeReward := 0.0
		episodeSteps := 0
		done := false

		for !done && totalSteps < nSteps {
			if a.conf.UseSDE && a.conf.SDESampleFreq > 0 &&
				totalSteps%a.conf.SDESampleFreq == 0 {
				a.actor.ResetNoise()
			}

			action, err := a.sampleAction(step.Observation)
			if err != nil {
				return RolloutReturn{}, fmt.Errorf("collectrollouts: %v", err)
			}

			next, last := a.env.Step(action)
			t := timestep.NewTransition(step, action, next)

			if accumContext {
				a.actor.UpdateContext(t)
			}

			a.session.EnvSteps++
			episodeSteps++
			totalSteps++

			callback.OfferLocals(a.call, callback.Locals{
				EnvSteps:     a.session.EnvSteps,
				EpisodeSteps: episodeSteps,
				TotalSteps:   totalSteps,
				Episodes:     totalEpisodes,
			})
			if !callback.ContinueStep(a.call) {
				// Cancellation abandons the partial episode: no
				// episode statistics are recorded for it
				if a.call != nil {
					callback.OfferLocals(a.call, callback.Locals{
						EnvSteps:     a.session.EnvSteps,
						EpisodeSteps: episodeSteps,
						TotalSteps:   totalSteps,
						Episodes:     totalEpisodes,
					})
					callback.Notify(a.call.OnRolloutEnd)
				}
				return RolloutReturn{
					MeanReward:       0.0,
					Steps:            totalSteps,
					Episodes:         totalEpisodes,
					ContinueTraining: false,
				}, nil
			}

			episodeReward += next.Reward
			for _, buf := range buffers {
				if err := buf.Add(t); err != nil {
					return RolloutReturn{}, fmt.Errorf("collectrollouts: "+
						"could not store transition: %v", err)
				}
			}

			step = next
			done = last
		}

		// Each episode is counted exactly once, whether it ended in
		// the environment or was truncated by the step quota
		totalEpisodes++
		episodeRewards = append(episodeRewards, episodeReward)
		a.session.RecordEpisode(episodeReward, episodeSteps)

		if done {
			if a.actionNoise != nil {
				a.actionNoise.Reset()
			}
			a.dumpLogs()
		}
	}

	if a.call != nil {
		callback.OfferLocals(a.call, callback.Locals{
			EnvSteps:   a.session.EnvSteps,
			TotalSteps: totalSteps,
			Episodes:   totalEpisodes,
		})
		callback.Notify(a.call.OnRolloutEnd)
	}

	meanReward := 0.0
	if len(episodeRewards) > 0 {
		meanReward = stat.Mean(episodeRewards, nil)
	}

	return RolloutReturn{
		MeanReward:       meanReward,
		Steps:            totalSteps,
		Episodes:         totalEpisodes,
		ContinueTraining: true,
	}, nil
}
