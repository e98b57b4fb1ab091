package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tiiuae/patrolengine/internal/config"
)

var (
	configPath     string
	dbPath         string
	deviceID       string
	mqttBroker     string
	privateKeyPath string
	verbose        bool

	logger *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "patrolengine",
		Short: "Autonomous patrol mission controller",
		Long: `Runs the patrol mission: camera frames are classified by the decision
engine, the mission mode machine reacts, setpoints stream to the flight
stack and detected emergencies are kept in a queryable ledger.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zapConfig := zap.NewProductionConfig()
			if verbose {
				zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = zapConfig.Build()
			if err != nil {
				return errors.WithMessage(err, "failed to initialize logger")
			}

			// .env is optional, the environment wins
			if err := godotenv.Load(); err != nil {
				logger.Debug("no .env file loaded", zap.Error(err))
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite emergency ledger")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(emergenciesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config (or defaults) and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Ledger.DBPath = dbPath
	}
	if flags.Changed("device_id") {
		cfg.DeviceID = deviceID
	}
	if flags.Changed("mqtt_broker") {
		cfg.MQTT.Broker = mqttBroker
	}
	if flags.Changed("private_key") {
		cfg.MQTT.PrivateKey = privateKeyPath
	}
	return cfg, cfg.Validate()
}
