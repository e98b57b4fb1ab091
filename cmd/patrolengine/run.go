package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"github.com/tiiuae/rclgo/pkg/ros2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tiiuae/patrolengine/internal/api"
	"github.com/tiiuae/patrolengine/internal/config"
	"github.com/tiiuae/patrolengine/internal/decision"
	"github.com/tiiuae/patrolengine/internal/flight"
	"github.com/tiiuae/patrolengine/internal/framebuffer"
	"github.com/tiiuae/patrolengine/internal/ledger"
	"github.com/tiiuae/patrolengine/internal/mission"
	"github.com/tiiuae/patrolengine/internal/navigation"
	"github.com/tiiuae/patrolengine/internal/reports"
	"github.com/tiiuae/patrolengine/internal/setpoint"
	"github.com/tiiuae/patrolengine/internal/telemetry"
	"github.com/tiiuae/patrolengine/internal/types"
)

func runCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the patrol mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// attach sigint & sigterm listeners
			terminationSignals := make(chan os.Signal, 1)
			signal.Notify(terminationSignals, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(terminationSignals)

			// quitFunc will be called when process is terminated
			ctx, quitFunc := context.WithCancel(cmd.Context())
			defer quitFunc()
			go func() {
				select {
				case <-terminationSignals:
					logger.Info("Shutting down..")
					quitFunc()
				case <-ctx.Done():
				}
			}()

			err = runMission(ctx, cfg, dryRun)
			logger.Info("Signing off - BYE")
			return err
		},
	}

	cmd.Flags().StringVar(&deviceID, "device_id", "", "The provisioned device id")
	cmd.Flags().StringVar(&mqttBroker, "mqtt_broker", "", "MQTT broker protocol, address and port")
	cmd.Flags().StringVar(&privateKeyPath, "private_key", "", "The private key for the MQTT authentication")
	cmd.Flags().BoolVar(&dryRun, "dry_run", false, "Log flight commands instead of sending them over ROS 2")
	return cmd
}

func runMission(ctx context.Context, cfg config.Config, dryRun bool) error {
	log := logger.With(zap.String("device_id", cfg.DeviceID))

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}

	store, err := ledger.OpenSQLite(cfg.Ledger.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	emergencies, err := ledger.New(ledger.WithStore(store), ledger.WithLogger(log.Named("ledger")))
	if err != nil {
		return err
	}

	// wait group will make sure ROS goroutines have time to clean up
	var wg sync.WaitGroup
	defer wg.Wait()

	var commander flight.Commander
	if dryRun {
		commander = flight.NewLogCommander(log.Named("flight"))
	} else {
		rclArgs, rclErr := ros2.NewRCLArgs("")
		if rclErr != nil {
			return errors.Errorf("rcl args: %v", rclErr)
		}
		rclContext, rclErr := ros2.NewContext(&wg, 0, rclArgs)
		if rclErr != nil {
			return errors.Errorf("rcl context: %v", rclErr)
		}
		defer rclContext.Close()

		rclLocalNode, rclErr := rclContext.NewNode("patrolengine_local", cfg.DeviceID)
		if rclErr != nil {
			return errors.Errorf("rcl node: %v", rclErr)
		}

		ros, err := flight.NewROSCommander(ctx, rclContext, rclLocalNode, log.Named("flight"))
		if err != nil {
			return err
		}
		defer ros.Close()
		commander = ros
	}

	setpoints := setpoint.NewStore()
	frames := framebuffer.New(log.Named("frames"))

	openaiClient := openai.NewClient(apiKey)
	var checkers []decision.Checker
	if cfg.Decision.SecurityCheck {
		checkers = append(checkers, decision.NewOpenAIChecker(openaiClient, cfg.Decision.Model, log.Named("security")))
	}
	engine := decision.WithTimeout(
		decision.Guarded(decision.NewOpenAIEngine(openaiClient, cfg.Decision.Model, cfg.Decision.MaxTokens, log.Named("decision")), checkers...),
		cfg.Mission.DecisionTimeout,
	)

	dispatcher, err := mission.NewDispatcher(setpoints, emergencies, commander,
		flight.CameraProjector{HFOVDeg: cfg.Camera.HFOVDeg, VFOVDeg: cfg.Camera.VFOVDeg, MaxStepMetres: cfg.Camera.MaxStepM},
		mission.WithDeviceID(cfg.DeviceID),
		mission.WithOffboardMode(cfg.Mission.OffboardMode),
		mission.WithCommandTimeout(cfg.Mission.CommandTimeout),
		mission.WithLogger(log.Named("dispatcher")),
	)
	if err != nil {
		return err
	}

	loop, err := mission.NewLoop(mission.LoopConfig{
		DeviceID:       cfg.DeviceID,
		FramePoll:      cfg.Mission.FramePoll,
		CommandTimeout: cfg.Mission.CommandTimeout,
		FinalMode:      cfg.Mission.FinalMode,
		Waypoints:      cfg.ReturnSequence,
		FinalLook:      cfg.Mission.FinalLook,
	}, dispatcher, frames, engine, setpoints, commander, log.Named("mission"))
	if err != nil {
		return err
	}

	publisher := navigation.NewPublisher(setpoints, commander, cfg.Navigation.RateHz, cfg.Navigation.SendTimeout, log.Named("navigation"))

	scheduler, err := reports.NewScheduler(cfg.Reports.Schedule, emergencies, cfg.DeviceID, log.Named("reports"))
	if err != nil {
		return err
	}

	server := api.NewServer(emergencies, loop, setpoints, log.Named("api"),
		api.WithStats("frames", func() interface{} { return frames.Stats() }),
		api.WithStats("navigation", func() interface{} { return publisher.Stats() }),
	)

	receivers := []types.MessageHandler{types.NewLogger(log.Named("bus"))}
	if cfg.MQTT.Broker != "" {
		mqttClient, err := telemetry.NewClient(ctx, telemetry.ClientConfig{
			Broker:         cfg.MQTT.Broker,
			DeviceID:       cfg.DeviceID,
			PrivateKeyPath: cfg.MQTT.PrivateKey,
			Algorithm:      cfg.MQTT.Algorithm,
			ProjectID:      cfg.MQTT.ProjectID,
			Region:         cfg.MQTT.Region,
			RegistryID:     cfg.MQTT.RegistryID,
		}, log.Named("mqtt"))
		if err != nil {
			return err
		}
		defer func(c mqtt.Client) { c.Disconnect(1000) }(mqttClient)

		if err := telemetry.SubscribeCommands(mqttClient, cfg.DeviceID, loop, frames, log.Named("commands")); err != nil {
			return err
		}
		receivers = append(receivers, telemetry.NewSink(mqttClient, cfg.DeviceID, log.Named("telemetry")))
	} else {
		log.Warn("no MQTT broker configured, running without frames and telemetry")
	}

	bus := types.NewMessageBus(100, log.Named("bus"), receivers...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error { return publisher.Run(gctx) })
	g.Go(func() error { return loop.Run(gctx, bus.Post) })
	g.Go(func() error { return server.Run(gctx, cfg.HTTP.Addr) })
	g.Go(func() error { return scheduler.Run(gctx, bus.Post) })

	log.Info("patrol engine running",
		zap.Stringer("mode", dispatcher.Mode()),
		zap.Int("waypoints", len(cfg.ReturnSequence)),
		zap.Bool("dry_run", dryRun))

	return g.Wait()
}
