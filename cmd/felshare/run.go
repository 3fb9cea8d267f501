package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/felshare-bridge/internal/api"
	"github.com/nerrad567/felshare-bridge/internal/bridges/felshare"
	"github.com/nerrad567/felshare-bridge/internal/cloud"
	"github.com/nerrad567/felshare-bridge/internal/infrastructure/config"
	"github.com/nerrad567/felshare-bridge/internal/infrastructure/database"
	"github.com/nerrad567/felshare-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/felshare-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/felshare-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/felshare-bridge/internal/telemetry"
	"github.com/nerrad567/felshare-bridge/migrations"
)

// runCommand parses the run flags, loads the configuration and runs the
// bridge until ctx is cancelled.
func runCommand(ctx context.Context, args []string, stderr io.Writer) error {
	fs, configPath := newFlagSet("run", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting Felshare bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", *configPath)

	return run(ctx, cfg, logging.New(cfg.Logging, version))
}

// run wires the components and blocks until ctx is cancelled. Deferred
// closes run in reverse order of startup.
func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	repo := felshare.NewSQLiteSyncRepository(db.DB)
	clientID, err := resolveClientID(ctx, cfg, repo)
	if err != nil {
		return err
	}

	cloudClient, err := cloud.New(cloud.Config{
		APIBase:    cfg.Cloud.APIBase,
		Email:      cfg.Cloud.Email,
		Password:   cfg.Cloud.Password,
		UserAgent:  "felshare-bridge/" + version,
		MaxBackoff: seconds(cfg.Hub.MaxBackoffSeconds),
	})
	if err != nil {
		return fmt.Errorf("creating cloud client: %w", err)
	}

	hub, err := felshare.New(hubOptions(cfg, clientID, cloudClient,
		mqtt.NewDialer(cfg.MQTT, cfg.Cloud.FrontURL, log.Component("mqtt")),
		repo, log.Component("hub")))
	if err != nil {
		return fmt.Errorf("creating hub: %w", err)
	}

	observers := []felshare.Observer{phaseLogger(log.Component("hub"))}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		observers = append(observers, telemetry.NewRecorder(influxClient).Observe)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:       cfg.API,
			Security:     cfg.Security,
			Logger:       log.Component("api"),
			Hub:          hub,
			OfflineAfter: time.Duration(cfg.Hub.OfflineAfterMinutes) * time.Minute,
			Version:      version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		observers = append(observers, server.Publish)
	} else {
		log.Info("API disabled")
	}

	if err := hub.Start(ctx, chain(observers...)); err != nil {
		return fmt.Errorf("starting hub: %w", err)
	}
	defer func() {
		log.Info("stopping hub")
		hub.Stop()
	}()
	log.Info("hub started", "device_id", hub.DeviceID(), "client_id", hub.ClientID())

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// resolveClientID builds the MQTT client id from the configured instance
// tag, or from the one persisted for this installation.
func resolveClientID(ctx context.Context, cfg *config.Config, repo *felshare.SQLiteSyncRepository) (string, error) {
	instance := cfg.MQTT.ClientInstance
	if instance == "" {
		var err error
		instance, err = repo.LoadOrCreateInstanceID(ctx)
		if err != nil {
			return "", fmt.Errorf("loading installation id: %w", err)
		}
	}
	suffix := cfg.MQTT.ClientIDSuffix
	if suffix == "" {
		suffix = felshare.DefaultClientIDSuffix
	}
	return felshare.ClientID(cfg.Device.ID, suffix, instance), nil
}

func hubOptions(cfg *config.Config, clientID string, auth felshare.Authenticator, dialer felshare.Dialer,
	repo felshare.SyncRepository, log felshare.Logger,
) felshare.Options {
	h := cfg.Hub
	return felshare.Options{
		DeviceID:           cfg.Device.ID,
		ClientID:           clientID,
		Auth:               auth,
		Dialer:             dialer,
		Repository:         repo,
		Logger:             log,
		MaxBackoff:         seconds(h.MaxBackoffSeconds),
		MinPublishInterval: time.Duration(h.MinPublishIntervalSeconds * float64(time.Second)),
		MaxBurst:           h.MaxBurstMessages,
		StatusMinInterval:  seconds(h.StatusMinIntervalSeconds),
		BulkInterval:       time.Duration(h.BulkIntervalHours) * time.Hour,
		StartupStale:       time.Duration(h.StartupStaleMinutes) * time.Minute,
		PollInterval:       time.Duration(h.PollIntervalMinutes) * time.Minute,
		EnableTXDLearning:  h.EnableTXDLearning,
		LearningWindow:     time.Duration(h.LearningWindowSeconds * float64(time.Second)),
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// chain fans one snapshot out to every observer in order.
func chain(observers ...felshare.Observer) felshare.Observer {
	return func(s felshare.State) {
		for _, o := range observers {
			o(s)
		}
	}
}

// phaseLogger logs connection phase transitions and new errors.
func phaseLogger(log *logging.Logger) felshare.Observer {
	var (
		mu        sync.Mutex
		lastPhase felshare.Phase
		lastErr   string
	)
	return func(s felshare.State) {
		mu.Lock()
		defer mu.Unlock()
		if s.Phase != lastPhase {
			log.Info("hub phase changed", "from", lastPhase, "to", s.Phase, "connected", s.Connected)
			lastPhase = s.Phase
		}
		if s.LastError != "" && s.LastError != lastErr {
			log.Warn("hub error", "error", s.LastError, "phase", s.Phase)
		}
		lastErr = s.LastError
	}
}
