// Package pendulum implements an underactuated pendulum with a family
// of goal-angle tasks for meta-reinforcement learning
package pendulum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/metalearn/pearl/environment"
	"github.com/metalearn/pearl/timestep"
	"github.com/metalearn/pearl/utils/floatutils"
)

// default physical constants
const (
	AngleBound  float64 = math.Pi // +/- Angle bounds
	SpeedBound  float64 = 8.0     // +/- Speed bounds
	TorqueBound float64 = 2.0     // +/- Torque bounds

	MaxAction float64 = TorqueBound
	MinAction float64 = -MaxAction

	dt      float64 = 0.05
	gravity float64 = 9.8
	mass    float64 = 1.0
	length  float64 = 1.0

	ObservationDims int = 2
	ActionDims      int = 1
)

// Pendulum implements the underactuated pendulum with a switchable
// goal-angle task. A pendulum is attached to a fixed base, and the
// agent applies a bounded torque at the base. The torque is too weak to
// move the pendulum directly to most goals, so momentum must be built
// up by rocking back and forth.
//
// State features are the pendulum angle measured from the positive
// y-axis, normalized to [-π, π], and the angular velocity, clipped to
// [-SpeedBound, SpeedBound]. Actions are 1-dimensional continuous
// torques clipped to [MinAction, MaxAction].
//
// The active task is selected by index with ResetTask. Pendulum
// implements the environment.MultiTask interface and simulates exactly
// one instance.
type Pendulum struct {
	tasks   []*GoalAngle
	taskIdx int

	angleBounds  r1.Interval
	speedBounds  r1.Interval
	torqueBounds r1.Interval
	lastStep     timestep.TimeStep
	discount     float64
}

// New creates and returns a new Pendulum over the argument task family
func New(tasks []*GoalAngle, discount float64) (*Pendulum,
	timestep.TimeStep, error) {
	if len(tasks) == 0 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: pendulum requires " +
			"at least one task")
	}

	p := &Pendulum{
		tasks:        tasks,
		taskIdx:      0,
		angleBounds:  r1.Interval{Min: -AngleBound, Max: AngleBound},
		speedBounds:  r1.Interval{Min: -SpeedBound, Max: SpeedBound},
		torqueBounds: r1.Interval{Min: -TorqueBound, Max: TorqueBound},
		discount:     discount,
	}

	firstStep := p.Reset()
	return p, firstStep, nil
}

// task returns the active task
func (p *Pendulum) task() *GoalAngle {
	return p.tasks[p.taskIdx]
}

// ResetTask switches the environment to the task at the argument index
func (p *Pendulum) ResetTask(idx int) error {
	if idx < 0 || idx >= len(p.tasks) {
		return fmt.Errorf("resettask: task index %v out of range [0, %v)",
			idx, len(p.tasks))
	}
	p.taskIdx = idx
	return nil
}

// TaskIndex returns the index of the active task
func (p *Pendulum) TaskIndex() int {
	return p.taskIdx
}

// NumTasks returns the number of task variants in the family
func (p *Pendulum) NumTasks() int {
	return len(p.tasks)
}

// NumInstances returns the number of parallel instances simulated
func (p *Pendulum) NumInstances() int {
	return 1
}

// Start samples a starting state from the active task
func (p *Pendulum) Start() mat.Vector {
	return p.task().Start()
}

// End delegates episode termination to the active task
func (p *Pendulum) End(t *timestep.TimeStep) bool {
	return p.task().End(t)
}

// GetReward returns the active task's reward for a transition
func (p *Pendulum) GetReward(state, action, nextState mat.Vector) float64 {
	return p.task().GetReward(state, action, nextState)
}

// AtGoal returns whether the argument state satisfies the active task
func (p *Pendulum) AtGoal(state mat.Matrix) bool {
	return p.task().AtGoal(state)
}

// Min returns the minimum attainable reward under the active task
func (p *Pendulum) Min() float64 {
	return p.task().Min()
}

// Max returns the maximum attainable reward under the active task
func (p *Pendulum) Max() float64 {
	return p.task().Max()
}

// RewardSpec returns the reward specification of the active task
func (p *Pendulum) RewardSpec() environment.Spec {
	return p.task().RewardSpec()
}

// Reset resets the environment and returns a starting state drawn from
// the active task's Starter
func (p *Pendulum) Reset() timestep.TimeStep {
	state := p.Start()
	validateState(state, p.angleBounds, p.speedBounds)
	startStep := timestep.New(timestep.First, 0, p.discount, state, 0)
	p.lastStep = startStep

	return startStep
}

// Step takes one environmental step given action a and returns the
// next timestep and a bool indicating whether or not the episode has
// ended. Actions are 1-dimensional continuous torques; actions outside
// the legal torque range are clipped to stay within it.
func (p *Pendulum) Step(action *mat.VecDense) (timestep.TimeStep, bool) {
	if action.Len() > ActionDims {
		panic("step: actions should be 1-dimensional")
	}

	torque := floatutils.ClipInterval(action.AtVec(0), p.torqueBounds)
	nextState := p.nextState(p.lastStep, torque)

	reward := p.GetReward(p.lastStep.Observation, action, nextState)
	nextStep := timestep.New(timestep.Mid, reward, p.discount, nextState,
		p.lastStep.Number+1)

	p.End(&nextStep)

	p.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// nextState computes the next state of the environment given a
// timestep and an amount of torque to apply at the pendulum's fixed
// base
func (p *Pendulum) nextState(t timestep.TimeStep,
	torque float64) *mat.VecDense {
	obs := t.Observation
	th, thdot := obs.AtVec(0), obs.AtVec(1)

	newthdot := thdot + (-3*gravity/(2*length)*math.Sin(th+math.Pi)+
		3.0/(mass*math.Pow(length, 2))*torque)*dt

	newth := th + (newthdot * dt)

	newthdot = floatutils.ClipInterval(newthdot, p.speedBounds)
	newth = normalizeAngle(newth, p.angleBounds)

	return mat.NewVecDense(ObservationDims, []float64{newth, newthdot})
}

// DiscountSpec returns the discount specification of the environment
func (p *Pendulum) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{p.discount})

	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}

// ObservationSpec returns the observation specification of the
// environment
func (p *Pendulum) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)

	minObs := []float64{p.angleBounds.Min, p.speedBounds.Min}
	lowerBound := mat.NewVecDense(ObservationDims, minObs)

	maxObs := []float64{p.angleBounds.Max, p.speedBounds.Max}
	upperBound := mat.NewVecDense(ObservationDims, maxObs)

	return environment.NewSpec(shape, environment.Observation, lowerBound,
		upperBound, environment.Continuous)
}

// ActionSpec returns the action specification of the environment
func (p *Pendulum) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Min})
	upperBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Max})

	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}

// String converts the environment to a string representation
func (p *Pendulum) String() string {
	str := "Pendulum  |  task: %v  |  theta: %v  |  theta dot: %v"
	theta := p.lastStep.Observation.AtVec(0)
	thetadot := p.lastStep.Observation.AtVec(1)

	return fmt.Sprintf(str, p.taskIdx, theta, thetadot)
}

// normalizeAngle normalizes the pendulum angle to the appropriate
// limits
func normalizeAngle(th float64, angleBounds r1.Interval) float64 {
	if angleBounds.Max != -angleBounds.Min {
		panic("angle bounds should be centered around 0")
	}

	if th > angleBounds.Max {
		divisor := int(th / angleBounds.Max)
		return -math.Pi + th - (angleBounds.Max * float64(divisor))
	} else if th < angleBounds.Min {
		divisor := int(th / angleBounds.Min)
		return math.Pi + th - (angleBounds.Min * float64(divisor))
	}
	return th
}

// validateState validates the state to ensure that the angle and
// angular velocity are within the environmental limits
func validateState(obs mat.Vector, angleBounds, speedBounds r1.Interval) {
	thWithinBounds := obs.AtVec(0) <= angleBounds.Max &&
		obs.AtVec(0) >= angleBounds.Min
	if !thWithinBounds {
		panic(fmt.Sprintf("theta is not within bounds %v", angleBounds))
	}

	thdotWithinBounds := obs.AtVec(1) <= speedBounds.Max &&
		obs.AtVec(1) >= speedBounds.Min
	if !thdotWithinBounds {
		panic(fmt.Sprintf("theta dot is not within bounds %v", speedBounds))
	}
}
