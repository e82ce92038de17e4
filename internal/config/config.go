// Package config loads process configuration from the environment, after
// merging in any .env files that exist.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/casualjim/runrelay/agentservice/openai"
	"github.com/casualjim/runrelay/pkg/slogx"
	"github.com/casualjim/runrelay/tracing"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	ProjectEndpoint string `env:"AZURE_AI_PROJECT_ENDPOINT"`
	APIKey          string `env:"AZURE_AI_API_KEY"`
	APIVersion      string `env:"AZURE_AI_API_VERSION"`
	AgentID         string `env:"AGENT_ID"`

	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE,default=false"`
	ServiceName      string  `env:"OTEL_SERVICE_NAME,default=runrelay"`
	SampleRatio      float64 `env:"OTEL_TRACES_SAMPLER_ARG,default=1"`
	ContentRecording bool    `env:"TRACING_CONTENT_RECORDING,default=false"`

	NATSURL      string        `env:"NATS_URL"`
	LogLevel     string        `env:"LOG_LEVEL,default=info"`
	PollInterval time.Duration `env:"RUN_POLL_INTERVAL,default=1s"`
}

// Load reads the given .env files (".env" when none are named), skipping
// those that do not exist, and decodes the environment into a Config.
// Variables already set in the environment win over .env entries.
func Load(ctx context.Context, files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
		slog.DebugContext(ctx, "loaded environment file", slog.String("file", f))
	}
	return Process(ctx, envconfig.OsLookuper())
}

// Process decodes a Config from lookuper without touching .env files.
func Process(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, fmt.Errorf("failed to process config: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("RUN_POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}
	return cfg, nil
}

// Validate reports the settings a program talking to the agent service
// cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.ProjectEndpoint == "" {
		errs = append(errs, errors.New("AZURE_AI_PROJECT_ENDPOINT is required"))
	}
	if c.AgentID == "" {
		errs = append(errs, errors.New("AGENT_ID is required"))
	}
	return errors.Join(errs...)
}

func (c Config) Level() slog.Level {
	return slogx.ParseLevel(c.LogLevel)
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName:   c.ServiceName,
		Endpoint:      c.OTLPEndpoint,
		Insecure:      c.OTLPInsecure,
		SampleRatio:   c.SampleRatio,
		RecordContent: c.ContentRecording,
	}
}

func (c Config) Agents() openai.Config {
	return openai.Config{
		BaseURL:      c.ProjectEndpoint,
		APIKey:       c.APIKey,
		APIVersion:   c.APIVersion,
		PollInterval: c.PollInterval,
	}
}
