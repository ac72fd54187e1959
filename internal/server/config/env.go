package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config fields from environment variables. A .env file in
// the working directory, if present, seeds the environment first; variables
// already set in the process environment win over the file.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString(&config.EndpointAddr, "KEYWARDEN_ADDR")
	setString(&config.DatabaseDSN, "KEYWARDEN_DATABASE_DSN")
	setString(&config.SecretKey, "KEYWARDEN_SECRET_KEY")
	setDuration(&config.AccessTokenValidityDuration, "KEYWARDEN_TOKEN_VALIDITY")
	setDuration(&config.DeliveryTimeout, "KEYWARDEN_DELIVERY_TIMEOUT")
	setDuration(&config.SweepInterval, "KEYWARDEN_SWEEP_INTERVAL")
	setDuration(&config.GrantWindow, "KEYWARDEN_GRANT_WINDOW")
	setDuration(&config.DefaultInactivityThreshold, "KEYWARDEN_DEFAULT_INACTIVITY_THRESHOLD")
	setDuration(&config.DefaultWaitingPeriod, "KEYWARDEN_DEFAULT_WAITING_PERIOD")

	setString(&config.SMTPHost, "KEYWARDEN_SMTP_HOST")
	setInt(&config.SMTPPort, "KEYWARDEN_SMTP_PORT")
	setString(&config.SMTPUser, "KEYWARDEN_SMTP_USER")
	setString(&config.SMTPPassword, "KEYWARDEN_SMTP_PASSWORD")
	setString(&config.SMTPFrom, "KEYWARDEN_SMTP_FROM")

	setString(&config.S3RootUser, "KEYWARDEN_S3_USER")
	setString(&config.S3RootPassword, "KEYWARDEN_S3_PASSWORD")
	setString(&config.S3Bucket, "KEYWARDEN_S3_BUCKET")
	setString(&config.S3Region, "KEYWARDEN_S3_REGION")
	setString(&config.S3BaseEndpoint, "KEYWARDEN_S3_ENDPOINT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
