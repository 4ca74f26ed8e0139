package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/tracing"
)

type Config struct {
	AppConfig            *AppConfig
	Logger               *logger.Config
	Tracing              *tracing.JaegerConfig
	RelayDatabaseConfig  *RelayDatabaseConfig
	ArchiveStorageConfig *ArchiveStorageConfig
	BreachWatchConfig    *BreachWatchConfig
	ProviderConfig       *ProviderConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:            &AppConfig{},
		Logger:               &logger.Config{},
		Tracing:              &tracing.JaegerConfig{},
		RelayDatabaseConfig:  &RelayDatabaseConfig{},
		ArchiveStorageConfig: &ArchiveStorageConfig{},
		BreachWatchConfig:    &BreachWatchConfig{},
		ProviderConfig:       &ProviderConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading relay config: %v", err)
	}

	return config, nil
}
