package main

import (
	"fmt"
	"os"
	"time"
)

var (
	// Default configuration values. These can be overridden with -ldflags.

	defaultSiteConfig     = "/etc/jobeff/jobeff.ini"
	defaultInstanceConfig = "/etc/jobeff/instances.yaml"
	defaultRate           = "15m"
	defaultDocsURL        = "https://github.com/happyface/jobeff"
)

type appConfig struct {
	SiteConfig     string
	InstanceConfig string
	Rate           time.Duration
	DocsURL        string
}

// envOr returns the environment variable key if set, def otherwise.
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func loadConfig() (*appConfig, error) {
	rate, err := time.ParseDuration(envOr("JOBEFF_RATE", defaultRate))
	if err != nil {
		return nil, fmt.Errorf("failed to parse default rate: %w", err)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("default rate %v must be positive", rate)
	}

	return &appConfig{
		SiteConfig:     envOr("JOBEFF_CONFIG", defaultSiteConfig),
		InstanceConfig: envOr("JOBEFF_INSTANCES", defaultInstanceConfig),
		Rate:           rate,
		DocsURL:        envOr("JOBEFF_DOCS_URL", defaultDocsURL),
	}, nil
}
