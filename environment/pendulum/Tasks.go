package pendulum

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/metalearn/pearl/environment"
)

// GoalAngle implements a task where the agent must move the pendulum
// to a fixed goal angle and hold it there. Each GoalAngle in a family
// has a different goal, so a family of GoalAngle tasks forms the task
// distribution that a meta-learner trains over: the dynamics are
// shared, and only the rewarded angle changes between tasks.
//
// Rewards are the negative squared angular distance to the goal, with
// small penalties on angular velocity and applied torque.
type GoalAngle struct {
	environment.Starter
	environment.Ender
	goal float64
}

// NewGoalAngle creates and returns a new GoalAngle task
func NewGoalAngle(goal float64, s environment.Starter,
	episodeSteps int) *GoalAngle {
	ender := environment.NewStepLimit(episodeSteps)
	return &GoalAngle{s, ender, goal}
}

// NewGoalFamily creates a family of n GoalAngle tasks with goal angles
// sampled uniformly from [-π, π]. Episodes under every task last at
// most episodeSteps timesteps.
func NewGoalFamily(n, episodeSteps int, seed uint64) []*GoalAngle {
	rng := rand.New(rand.NewSource(seed))

	tasks := make([]*GoalAngle, n)
	for i := range tasks {
		goal := -AngleBound + 2*AngleBound*rng.Float64()

		angles := r1.Interval{Min: -math.Pi / 4, Max: math.Pi / 4}
		speeds := r1.Interval{Min: -0.05, Max: 0.05}
		starter := environment.NewUniformStarter([]r1.Interval{angles, speeds},
			rng.Uint64())

		tasks[i] = NewGoalAngle(goal, starter, episodeSteps)
	}
	return tasks
}

// Goal returns the goal angle of the task
func (g *GoalAngle) Goal() float64 {
	return g.goal
}

// GetReward returns the reward for taking an action in a state,
// leading to the next state
func (g *GoalAngle) GetReward(state, action, nextState mat.Vector) float64 {
	th := nextState.AtVec(0)
	thdot := nextState.AtVec(1)
	torque := action.AtVec(0)

	dist := angleDistance(th, g.goal)
	return -(dist*dist + 0.1*thdot*thdot + 0.001*torque*torque)
}

// AtGoal returns whether the argument state is a goal state
func (g *GoalAngle) AtGoal(state mat.Matrix) bool {
	return math.Abs(angleDistance(state.At(0, 0), g.goal)) < math.Pi/16
}

// Min returns the minimum attainable reward
func (g *GoalAngle) Min() float64 {
	return -(math.Pi*math.Pi + 0.1*SpeedBound*SpeedBound +
		0.001*TorqueBound*TorqueBound)
}

// Max returns the maximum attainable reward
func (g *GoalAngle) Max() float64 {
	return 0.0
}

// RewardSpec returns the reward specification of the task
func (g *GoalAngle) RewardSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{g.Min()})
	upperBound := mat.NewVecDense(1, []float64{g.Max()})

	return environment.NewSpec(shape, environment.Reward, lowerBound,
		upperBound, environment.Continuous)
}

// angleDistance returns the signed distance between two angles,
// accounting for wrap-around at ±π
func angleDistance(th, goal float64) float64 {
	diff := math.Mod(th-goal, 2*math.Pi)
	if diff > math.Pi {
		diff -= 2 * math.Pi
	} else if diff < -math.Pi {
		diff += 2 * math.Pi
	}
	return diff
}
