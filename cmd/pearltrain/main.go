// Command pearltrain meta-trains a context-conditioned policy on a
// family of pendulum goal-angle tasks
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/metalearn/pearl/agent/pearl"
	"github.com/metalearn/pearl/environment/pendulum"
	"github.com/metalearn/pearl/logger"
	"github.com/metalearn/pearl/meta"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pearltrain",
		Short: "Meta-train a context-conditioned policy on pendulum tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.Int("iterations", 50, "number of meta-training iterations")
	flags.Int("train-tasks", 10, "number of training tasks")
	flags.Int("eval-tasks", 5, "number of held-out evaluation tasks")
	flags.Int("latent-dim", 5, "dimension of the latent task variable")
	flags.Int("max-path-length", 100, "maximum episode length in steps")
	flags.Int("steps-prior", 200, "prior-phase steps per task visit")
	flags.Int("steps-posterior", 0, "posterior-phase steps per task visit")
	flags.Int("extra-rl-steps", 300,
		"policy-only posterior steps per task visit")
	flags.Int("initial-steps", 1000, "bootstrap steps per training task")
	flags.Int("train-steps", 2000, "gradient updates per iteration")
	flags.Int("meta-batch", 16, "tasks per gradient update")
	flags.Int("batch-size", 256, "transitions per task per gradient update")
	flags.Float64("gamma", 0.99, "discount factor")
	flags.Float64("learning-rate", 3e-4, "critic learning rate")
	flags.Uint64("seed", 0, "random seed")
	flags.Bool("debug", false, "enable debug logging")

	if err := viper.BindPFlags(flags); err != nil {
		panic(fmt.Sprintf("could not bind flags: %v", err))
	}
	viper.SetEnvPrefix("PEARL")
	viper.AutomaticEnv()

	return cmd
}

func run() error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if viper.GetBool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	console := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = log.Output(console)

	conf := meta.DefaultConfig()
	conf.NTrainTasks = viper.GetInt("train-tasks")
	conf.NEvalTasks = viper.GetInt("eval-tasks")
	conf.LatentDim = viper.GetInt("latent-dim")
	conf.MaxPathLength = viper.GetInt("max-path-length")
	conf.NumStepsPrior = viper.GetInt("steps-prior")
	conf.NumStepsPosterior = viper.GetInt("steps-posterior")
	conf.NumExtraRLStepsPosterior = viper.GetInt("extra-rl-steps")
	conf.NumInitialSteps = viper.GetInt("initial-steps")
	conf.NumTrainStepsPerItr = viper.GetInt("train-steps")
	conf.MetaBatch = viper.GetInt("meta-batch")
	conf.BatchSize = viper.GetInt("batch-size")
	conf.Gamma = viper.GetFloat64("gamma")
	conf.Seed = viper.GetUint64("seed")

	tasks := pendulum.NewGoalFamily(conf.NTrainTasks+conf.NEvalTasks,
		conf.MaxPathLength, conf.Seed)
	env, _, err := pendulum.New(tasks, conf.Gamma)
	if err != nil {
		return fmt.Errorf("could not create environment: %v", err)
	}

	actor, err := pearl.New(env, pearl.Config{
		LatentDim:          conf.LatentDim,
		PolicyHiddenSizes:  []int{64, 64},
		EncoderHiddenSizes: []int{64, 64},
		UseSDE:             conf.UseSDE,
		Seed:               conf.Seed,
	})
	if err != nil {
		return fmt.Errorf("could not create actor: %v", err)
	}

	rec := logger.NewRecorder(os.Stdout)
	alg, err := meta.New(conf, env, actor, nil, nil, rec, nil)
	if err != nil {
		return fmt.Errorf("could not create training core: %v", err)
	}

	learner, err := pearl.NewLearner(actor, alg.ReplayPool(),
		alg.EncoderPool(), pearl.LearnerConfig{
			BatchSize:          conf.BatchSize,
			EmbeddingBatchSize: conf.EmbeddingBatchSize,
			Gamma:              conf.Gamma,
			LearningRate:       viper.GetFloat64("learning-rate"),
			HiddenSizes:        []int{64, 64},
		})
	if err != nil {
		return fmt.Errorf("could not create learner: %v", err)
	}
	alg.SetLearner(learner)

	iterations := viper.GetInt("iterations")
	log.Info().
		Int("iterations", iterations).
		Int("trainTasks", conf.NTrainTasks).
		Int("latentDim", conf.LatentDim).
		Msg("starting meta-training")

	if err := alg.Learn(iterations); err != nil {
		return err
	}

	session := alg.Session()
	log.Info().
		Int("envSteps", session.EnvSteps).
		Int("trainSteps", session.TrainSteps).
		Int("episodes", session.Episodes).
		Float64("epRewMean", session.MeanEpisodeReward()).
		Msg("meta-training complete")
	return nil
}
