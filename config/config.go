// Package config loads the dispatch engine's configuration from a YAML file
// plus environment overrides, grounded on the teacher's config.Config/
// NewConfig shape (pkg/configparser.LoadAndParseYaml + flag parsing).
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/fleetcore/dispatch/internal/bidding"
	"github.com/fleetcore/dispatch/internal/scoring"
	"github.com/fleetcore/dispatch/internal/watchdog"
	"github.com/fleetcore/dispatch/pkg/configparser"
)

var modeFlag = flag.String("mode", "run", "dispatch engine mode: run")

// Config is the engine's full runtime configuration.
type (
	Config struct {
		Mode string

		Database  DatabaseConfig
		RabbitMQ  RabbitMQConfig
		HTTP      HTTPConfig
		Auth      AuthConfig
		Matching  MatchingConfig
		Scoring   ScoringConfig
		Geo       GeoConfig
		Watchdog  WatchdogConfig
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"dispatch_user"`
		Password string `env:"DATABASE_PASSWORD" default:"dispatch_pass"`
		Database string `env:"DATABASE_DATABASE" default:"dispatch_db"`

		MaxIdleTime     string        `env:"DATABASE_MAXIDLETIME" default:"15m"`
		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`
	}

	RabbitMQConfig struct {
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	HTTPConfig struct {
		Addr        string `env:"HTTP_ADDR" default:"0.0.0.0:8090"`
		ServiceName string `env:"HTTP_SERVICE_NAME" default:"dispatch-engine"`
	}

	AuthConfig struct {
		JWTSecret    string        `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
		DispatcherID string        `env:"AUTH_DISPATCHER_ID" default:"dispatcher-1"`
		TokenTTL     time.Duration `env:"AUTH_TOKEN_TTL" default:"24h"`
	}

	// MatchingConfig tunes the intake queue and bidding coordinator.
	MatchingConfig struct {
		IntakeQueueSize int     `env:"MATCHING_INTAKE_QUEUE_SIZE" default:"1024"`
		MaxBidRadiusKM  float64 `env:"MATCHING_MAX_BID_RADIUS_KM" default:"10"`
	}

	// ScoringConfig mirrors scoring.Weights so operators can retune the
	// utility function without a redeploy.
	ScoringConfig struct {
		Distance    float64 `env:"SCORING_WEIGHT_DISTANCE" default:"0.35"`
		Fairness    float64 `env:"SCORING_WEIGHT_FAIRNESS" default:"0.20"`
		Idle        float64 `env:"SCORING_WEIGHT_IDLE" default:"0.10"`
		Reliability float64 `env:"SCORING_WEIGHT_RELIABILITY" default:"0.20"`
		ETA         float64 `env:"SCORING_WEIGHT_ETA" default:"0.15"`
	}

	GeoConfig struct {
		LocationIQAPIKey string `env:"GEO_LOCATIONIQ_API_KEY"`
	}

	WatchdogConfig struct {
		Interval         time.Duration `env:"WATCHDOG_INTERVAL" default:"30s"`
		AuctionGrace     time.Duration `env:"WATCHDOG_AUCTION_GRACE" default:"10s"`
		DriverStaleAfter time.Duration `env:"WATCHDOG_DRIVER_STALE_AFTER" default:"120s"`
		MaxAllocatedAge  time.Duration `env:"WATCHDOG_MAX_ALLOCATED_AGE" default:"45m"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

func (c ScoringConfig) Weights() scoring.Weights {
	w := scoring.DefaultWeights()
	w.Distance = c.Distance
	w.Fairness = c.Fairness
	w.Idle = c.Idle
	w.Reliability = c.Reliability
	w.ETA = c.ETA
	return w
}

func (c MatchingConfig) BiddingConfig() bidding.Config {
	return bidding.Config{MaxBidRadiusKM: c.MaxBidRadiusKM}
}

func (c WatchdogConfig) WatchdogConfig() watchdog.Config {
	return watchdog.Config{
		Interval:         c.Interval,
		AuctionGrace:     c.AuctionGrace,
		DriverStaleAfter: c.DriverStaleAfter,
		MaxAllocatedAge:  c.MaxAllocatedAge,
	}
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}
	parseFlags(cfg)
	return cfg, nil
}

func parseFlags(cfg *Config) {
	if modeFlag != nil && *modeFlag != "" {
		cfg.Mode = *modeFlag
	}
}
