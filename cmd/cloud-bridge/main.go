package main

import (
	"context"
	"encoding/hex"
	"flag"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/rs/zerolog"

	"github.com/homed/cloud-bridge/internal/pkg/bridge"
	"github.com/homed/cloud-bridge/internal/pkg/config"
	"github.com/homed/cloud-bridge/internal/pkg/crypto"
	"github.com/homed/cloud-bridge/internal/pkg/infrastructure/logging"
	"github.com/homed/cloud-bridge/internal/pkg/infrastructure/router"
	"github.com/homed/cloud-bridge/internal/pkg/infrastructure/tracing"
	"github.com/homed/cloud-bridge/internal/pkg/persistence"
	"github.com/homed/cloud-bridge/internal/pkg/presentation/api"
	"github.com/homed/cloud-bridge/internal/pkg/skillclient"
	"github.com/homed/cloud-bridge/internal/pkg/user"
	"github.com/homed/cloud-bridge/internal/pkg/watchdog"
)

const serviceName = "cloud-bridge"
const serviceVersion = "0.1.0"

var configPath string
var dbPath string

func main() {
	ctx, logger := logging.NewLogger(context.Background(), serviceName, serviceVersion)

	cleanup, err := tracing.Init(ctx, logger, serviceName, serviceVersion)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer cleanup()

	flag.StringVar(&configPath, "config", "/etc/cloud-bridge/bridge.ini", "path to the INI configuration file")
	flag.StringVar(&dbPath, "db", "/var/lib/cloud-bridge/users.db", "path to the sqlite users database")
	flag.Parse()

	cfg := loadConfigOrDie(logger)

	db, err := persistence.NewDatabaseConnection(persistence.NewSQLiteConnector(dbPath, logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	secret, err := hex.DecodeString(cfg.Client.Secret)
	if err != nil {
		logger.Fatal().Err(err).Msg("client/secret is not valid hex")
	}
	global, err := crypto.NewGlobalCipher(secret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init global cipher from client secret")
	}

	users, err := user.New(db, global, cfg.Client.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load users")
	}

	skill := skillclient.New(ctx, skillclient.Config{
		SkillID: cfg.Skill.ID,
		Token:   cfg.Skill.Token,
		BaseURL: cfg.Skill.BaseURL,
	}, logger)
	defer skill.Close()

	ctl := bridge.NewController(users, skill, logger)

	messenger := setupMessagingOrNil(logger)
	wd := watchdog.New(ctl, messenger, logger)
	go wd.Start(ctx)

	go sweepExpiredCodesLoop(ctx, users)

	hubListener, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to listen for hub connections")
	}
	go func() {
		if err := ctl.Serve(ctx, hubListener); err != nil {
			logger.Error().Err(err).Msg("hub listener stopped")
		}
	}()

	sender := user.LoggingSender{Log: logger}

	r := router.New(serviceName)
	api.RegisterHandlers(logger, r, users, ctl, sender)

	logger.Info().Str("address", cfg.HTTP.Address).Msg("starting http front door")
	if err := http.ListenAndServe(cfg.HTTP.Address, r); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}

func loadConfigOrDie(logger zerolog.Logger) *config.Config {
	f, err := os.Open(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msgf("failed to open configuration file %s", configPath)
	}
	defer f.Close()

	cfg, err := config.Load(f)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse configuration file")
	}

	return cfg
}

func setupMessagingOrNil(logger zerolog.Logger) messaging.MsgContext {
	amqpHost := os.Getenv("RABBITMQ_HOST")
	if amqpHost == "" {
		logger.Info().Msg("no message broker configured, alarms will only be logged")
		return nil
	}

	cfg := messaging.LoadConfiguration(serviceName, logger)
	messenger, err := messaging.Initialize(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to init messenger, alarms will only be logged")
		return nil
	}

	return messenger
}

func sweepExpiredCodesLoop(ctx context.Context, users *user.Manager) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			users.SweepExpiredCodes()
		}
	}
}
