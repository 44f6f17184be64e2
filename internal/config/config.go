// Package config loads runtime settings from an optional YAML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/syllabusflow/internal/gcp"
	"github.com/Lllllllleong/syllabusflow/internal/generate"
	"github.com/Lllllllleong/syllabusflow/internal/pipeline"
)

const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"

	// FileEnv names the variable pointing at an optional YAML config file.
	FileEnv = "SYLLABUS_CONFIG_FILE"
)

type Config struct {
	Generation GenerationConfig `yaml:"generation"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Cloud      CloudConfig      `yaml:"cloud"`
	Server     ServerConfig     `yaml:"server"`
}

type GenerationConfig struct {
	Provider          string        `yaml:"provider"`
	GeminiAPIKey      string        `yaml:"gemini_api_key"`
	GeminiModel       string        `yaml:"gemini_model"`
	GeminiEndpoint    string        `yaml:"gemini_endpoint"`
	VertexRegion      string        `yaml:"vertex_region"`
	VertexModel       string        `yaml:"vertex_model"`
	CredentialsFile   string        `yaml:"credentials_file"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type PipelineConfig struct {
	MaxUploadBytes       int64         `yaml:"max_upload_bytes"`
	MaxPromptChars       int           `yaml:"max_prompt_chars"`
	DefaultTargetLessons int           `yaml:"default_target_lessons"`
	MaxTargetLessons     int           `yaml:"max_target_lessons"`
	GenerationTick       time.Duration `yaml:"generation_tick"`
}

type CloudConfig struct {
	ProjectID           string `yaml:"project_id"`
	FirestoreCollection string `yaml:"firestore_collection"`
	WorkflowID          string `yaml:"workflow_id"`
	WorkflowLocation    string `yaml:"workflow_location"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Generation: GenerationConfig{
			Provider:       ProviderGemini,
			GeminiModel:    generate.DefaultGeminiModel,
			GeminiEndpoint: generate.DefaultGeminiEndpoint,
			VertexRegion:   "us-central1",
			VertexModel:    gcp.DefaultVertexModel,
			Timeout:        generate.DefaultTimeout,
		},
		Pipeline: PipelineConfig{
			MaxUploadBytes:       20 << 20,
			DefaultTargetLessons: pipeline.DefaultTargetLessons,
			MaxTargetLessons:     pipeline.DefaultMaxTargetLessons,
			GenerationTick:       time.Second,
		},
		Cloud: CloudConfig{
			FirestoreCollection: "syllabusRuns",
			WorkflowLocation:    "us-central1",
		},
		Server: ServerConfig{Port: 8080},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first when present; variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Could not load .env file.", "error", err)
	}
	return LoadFile(gcp.GetEnv(FileEnv, ""))
}

// LoadFile reads path (if non-empty) on top of the defaults, then applies
// environment overrides and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate reports malformed values. Missing credentials are not checked
// here; the generator reports them on each call.
func (c *Config) Validate() error {
	switch c.Generation.Provider {
	case ProviderGemini, ProviderVertex:
	default:
		return fmt.Errorf("invalid generation provider: %q", c.Generation.Provider)
	}
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("generation timeout must be positive, got %s", c.Generation.Timeout)
	}
	if c.Generation.RequestsPerMinute < 0 {
		return fmt.Errorf("requests per minute cannot be negative")
	}
	if c.Pipeline.MaxUploadBytes < 0 {
		return fmt.Errorf("max upload bytes cannot be negative")
	}
	if c.Pipeline.MaxPromptChars < 0 {
		return fmt.Errorf("max prompt chars cannot be negative")
	}
	if c.Pipeline.DefaultTargetLessons < 1 {
		return fmt.Errorf("default target lessons must be at least 1, got %d", c.Pipeline.DefaultTargetLessons)
	}
	if c.Pipeline.MaxTargetLessons < c.Pipeline.DefaultTargetLessons {
		return fmt.Errorf("max target lessons (%d) is below the default (%d)", c.Pipeline.MaxTargetLessons, c.Pipeline.DefaultTargetLessons)
	}
	if c.Pipeline.GenerationTick < 0 {
		return fmt.Errorf("generation tick cannot be negative")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	return nil
}

// OrchestratorConfig converts the settings into orchestrator tunables.
func (c *Config) OrchestratorConfig() pipeline.Config {
	return pipeline.Config{
		MaxUploadBytes:       c.Pipeline.MaxUploadBytes,
		MaxPromptChars:       c.Pipeline.MaxPromptChars,
		DefaultTargetLessons: c.Pipeline.DefaultTargetLessons,
		MaxTargetLessons:     c.Pipeline.MaxTargetLessons,
		GenerationTick:       c.Pipeline.GenerationTick,
	}
}

// Generator is a generate.Generator that may hold a client needing release.
type Generator interface {
	generate.Generator
	Close() error
}

type geminiGenerator struct{ *generate.Gemini }

func (geminiGenerator) Close() error { return nil }

// NewGenerator builds the configured provider.
func (c *Config) NewGenerator(ctx context.Context, logger *slog.Logger) (Generator, error) {
	g := c.Generation
	switch g.Provider {
	case ProviderVertex:
		v, err := generate.NewVertex(ctx, generate.VertexConfig{
			VertexModelConfig: gcp.VertexModelConfig{
				ProjectID:       c.Cloud.ProjectID,
				Region:          g.VertexRegion,
				Model:           g.VertexModel,
				CredentialsFile: g.CredentialsFile,
			},
			Parameters: generate.DefaultModelParameters(),
			Timeout:    g.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return v, nil
	case ProviderGemini:
		return geminiGenerator{generate.NewGemini(generate.GeminiConfig{
			APIKey:            g.GeminiAPIKey,
			Model:             g.GeminiModel,
			Endpoint:          g.GeminiEndpoint,
			Timeout:           g.Timeout,
			RequestsPerMinute: g.RequestsPerMinute,
			Parameters:        generate.DefaultModelParameters(),
		}, logger)}, nil
	default:
		return nil, fmt.Errorf("invalid generation provider: %q", g.Provider)
	}
}

func applyEnvOverrides(cfg *Config) error {
	var errs []error
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("GENERATION_PROVIDER", &cfg.Generation.Provider)
	cfg.Generation.Provider = strings.ToLower(cfg.Generation.Provider)
	setString("GEMINI_API_KEY", &cfg.Generation.GeminiAPIKey)
	setString("GEMINI_MODEL", &cfg.Generation.GeminiModel)
	setString("GEMINI_ENDPOINT", &cfg.Generation.GeminiEndpoint)
	setString("VERTEX_AI_REGION", &cfg.Generation.VertexRegion)
	setString("VERTEX_MODEL", &cfg.Generation.VertexModel)
	setString("GOOGLE_APPLICATION_CREDENTIALS", &cfg.Generation.CredentialsFile)
	setDuration("GENERATION_TIMEOUT", &cfg.Generation.Timeout)
	setInt("GENERATION_RPM", &cfg.Generation.RequestsPerMinute)

	if v, ok := os.LookupEnv("MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err))
		} else {
			cfg.Pipeline.MaxUploadBytes = n
		}
	}
	setInt("MAX_PROMPT_CHARS", &cfg.Pipeline.MaxPromptChars)
	setInt("DEFAULT_TARGET_LESSONS", &cfg.Pipeline.DefaultTargetLessons)
	setInt("MAX_TARGET_LESSONS", &cfg.Pipeline.MaxTargetLessons)
	setDuration("GENERATION_TICK", &cfg.Pipeline.GenerationTick)

	setString("PROJECT_ID", &cfg.Cloud.ProjectID)
	setString("FIRESTORE_COLLECTION", &cfg.Cloud.FirestoreCollection)
	setString("WORKFLOW_ID", &cfg.Cloud.WorkflowID)
	setString("WORKFLOW_LOCATION", &cfg.Cloud.WorkflowLocation)
	setInt("PORT", &cfg.Server.Port)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(errs...))
	}
	return nil
}
