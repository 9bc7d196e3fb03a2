// Package callback defines the hook surface that training invokes at
// step and rollout boundaries
package callback

// Locals is a snapshot of in-flight rollout state handed to callbacks
// before each step decision and before each rollout-end hook
type Locals struct {
	// EnvSteps is the session-wide environment step counter
	EnvSteps int

	// EpisodeSteps counts steps taken in the current episode
	EpisodeSteps int

	// TotalSteps counts steps taken in the current rollout collection
	TotalSteps int

	// Episodes counts episodes finished in the current rollout
	// collection
	Episodes int
}

// Callback receives notifications at training lifecycle boundaries.
// OnStep may request cancellation of data collection by returning
// false; every other hook is advisory.
type Callback interface {
	// OnTrainingStart runs once before the first iteration
	OnTrainingStart() error

	// OnTrainingEnd runs once after the last iteration
	OnTrainingEnd() error

	// OnRolloutStart runs before each rollout collection
	OnRolloutStart() error

	// OnRolloutEnd runs after each rollout collection
	OnRolloutEnd() error

	// OnStep runs after each environment step. Collection continues
	// unless the hook returns (false, nil).
	OnStep() (bool, error)

	// UpdateLocals receives a rollout-state snapshot before OnStep
	// and before OnRolloutEnd
	UpdateLocals(l Locals)
}

// NoOp implements every hook as a no-op. Embed it to implement only
// the hooks of interest.
type NoOp struct{}

func (NoOp) OnTrainingStart() error { return nil }
func (NoOp) OnTrainingEnd() error   { return nil }
func (NoOp) OnRolloutStart() error  { return nil }
func (NoOp) OnRolloutEnd() error    { return nil }
func (NoOp) OnStep() (bool, error)  { return true, nil }
func (NoOp) UpdateLocals(l Locals)  {}

// Notify runs an advisory hook, swallowing its error and any panic.
// Hooks observe training; they must not be able to crash it.
func Notify(fn func() error) {
	if fn == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	_ = fn()
}

// OfferLocals hands a rollout-state snapshot to the callback,
// swallowing any panic. Snapshots observe training; they must not be
// able to crash it.
func OfferLocals(c Callback, l Locals) {
	if c == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	c.UpdateLocals(l)
}

// ContinueStep runs the OnStep hook and reports whether collection
// should continue. Only an explicit (false, nil) return cancels: a nil
// callback, a hook error, or a panic all mean collection continues.
func ContinueStep(c Callback) (cont bool) {
	cont = true
	if c == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			cont = true
		}
	}()

	ok, err := c.OnStep()
	if err != nil {
		return true
	}
	return ok
}
