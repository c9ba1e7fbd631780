package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	PresencePort   string `env:"RELAY_PRESENCE_PORT" envDefault:"4001"`
	SignalPort     string `env:"RELAY_SIGNAL_PORT" envDefault:"4002"`
	AuthEndpoint   string `env:"RELAY_AUTH_ENDPOINT" envDefault:"http://localhost:3000/api/socket/verify"`
	RequireAuth    bool   `env:"RELAY_REQUIRE_AUTH" envDefault:"true"`
	StreamTiers    bool   `env:"RELAY_STREAM_TIERS" envDefault:"true"`
	NatsURL        string `env:"RELAY_NATS_URL" envDefault:""`
	TokenCacheURL  string `env:"RELAY_TOKEN_CACHE_REDIS_URL" envDefault:""`
	TokenCacheSecs int    `env:"RELAY_TOKEN_CACHE_SECONDS" envDefault:"60"`
	LogJSON        bool   `env:"RELAY_LOG_JSON" envDefault:"false"`
}

func Init() Config {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	conf := Config{}
	if err := env.Parse(&conf); err != nil {
		log.WithError(err).Fatal("Failed to parse config from environment")
	}

	if conf.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}

	return conf
}
