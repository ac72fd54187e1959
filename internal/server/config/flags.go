package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-w int      sweep interval, seconds
//	-i int      default inactivity threshold, hours
//	-p int      default waiting period, hours
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-w", "-i", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	sweepInterval := fs.Int("w", int(config.SweepInterval.Seconds()), "sweep interval (in seconds)")
	inactivityThreshold := fs.Int("i", int(config.DefaultInactivityThreshold.Hours()), "default inactivity threshold (in hours)")
	waitingPeriod := fs.Int("p", int(config.DefaultWaitingPeriod.Hours()), "default waiting period (in hours)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
	config.SweepInterval = time.Duration(*sweepInterval) * time.Second
	config.DefaultInactivityThreshold = time.Duration(*inactivityThreshold) * time.Hour
	config.DefaultWaitingPeriod = time.Duration(*waitingPeriod) * time.Hour
}
