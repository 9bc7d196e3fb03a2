package meta

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// episodeInfoWindow bounds the number of recent episodes that the
// rolling reward and length statistics average over
const episodeInfoWindow = 100

// Session tracks the observable progress of one training run. Every
// counter lives here rather than in package state so that concurrent
// runs in one process cannot interfere.
type Session struct {
	// EnvSteps counts environment transitions consumed across all
	// tasks and phases, incremented exactly once per step taken
	EnvSteps int

	// TrainSteps counts gradient updates performed
	TrainSteps int

	// Episodes counts completed or truncated episodes
	Episodes int

	// InitialExperience reports whether the once-per-run bootstrap
	// collection has happened
	InitialExperience bool

	startTime time.Time

	epRewards []float64
	epLengths []float64
}

// NewSession returns a Session with its clock started
func NewSession() *Session {
	return &Session{startTime: time.Now()}
}

// RecordEpisode records the return and length of one finished episode
func (s *Session) RecordEpisode(reward float64, length int) {
	s.Episodes++
	s.epRewards = append(s.epRewards, reward)
	s.epLengths = append(s.epLengths, float64(length))
	if len(s.epRewards) > episodeInfoWindow {
		s.epRewards = s.epRewards[1:]
		s.epLengths = s.epLengths[1:]
	}
}

// MeanEpisodeReward returns the mean return over the recent episode
// window, or 0 if no episode has finished
func (s *Session) MeanEpisodeReward() float64 {
	if len(s.epRewards) == 0 {
		return 0.0
	}
	return stat.Mean(s.epRewards, nil)
}

// MeanEpisodeLength returns the mean length over the recent episode
// window, or 0 if no episode has finished
func (s *Session) MeanEpisodeLength() float64 {
	if len(s.epLengths) == 0 {
		return 0.0
	}
	return stat.Mean(s.epLengths, nil)
}

// FPS returns the environment steps consumed per second of wall time
func (s *Session) FPS() float64 {
	elapsed := time.Since(s.startTime).Seconds()
	if elapsed <= 0 {
		return 0.0
	}
	return float64(s.EnvSteps) / elapsed
}
