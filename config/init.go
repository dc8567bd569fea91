package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/techmailbox/shipmail/internal/logger"
	"github.com/techmailbox/shipmail/internal/tracing"
)

// Config is built once at startup and passed read-only to every component
// that needs it.
type Config struct {
	AppConfig      *AppConfig
	Imap           *ImapConfig
	Smtp           *SmtpConfig
	Attachments    *AttachmentConfig
	DatabaseConfig *DatabaseConfig
	Cron           *CronConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Imap:           &ImapConfig{},
		Smtp:           &SmtpConfig{},
		Attachments:    &AttachmentConfig{},
		DatabaseConfig: &DatabaseConfig{},
		Cron:           &CronConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading shipmail config: %v", err)
	}

	return config, nil
}
