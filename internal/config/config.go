package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port      int    `yaml:"port"`
		Host      string `yaml:"host"`
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`

	Session struct {
		MinDurationSeconds int `yaml:"min_duration_seconds"`
	} `yaml:"session"`

	Audio struct {
		SampleRate int    `yaml:"sample_rate"`
		Codec      string `yaml:"codec"`
		FFmpegBin  string `yaml:"ffmpeg_bin"`
	} `yaml:"audio"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Storage struct {
		UploadsDir string `yaml:"uploads_dir"`
		Database   string `yaml:"database"`
	} `yaml:"storage"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Pipeline struct {
		ConvertTimeoutSeconds int `yaml:"convert_timeout_seconds"`
		CompileTimeoutSeconds int `yaml:"compile_timeout_seconds"`
	} `yaml:"pipeline"`

	Training struct {
		Endpoint        string `yaml:"endpoint"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		MaxRetrySeconds int    `yaml:"max_retry_seconds"`
	} `yaml:"training"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`
}

// Load reads the YAML config file, then applies .env and environment
// overrides for deploy-specific values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Session.MinDurationSeconds == 0 {
		cfg.Session.MinDurationSeconds = 1200
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 22050
	}
	if cfg.Audio.Codec == "" {
		cfg.Audio.Codec = "pcm_s16le"
	}
	if cfg.Audio.FFmpegBin == "" {
		cfg.Audio.FFmpegBin = "ffmpeg"
	}
	if cfg.Workers.Count == 0 {
		cfg.Workers.Count = 4
	}
	if cfg.Storage.UploadsDir == "" {
		cfg.Storage.UploadsDir = "uploads"
	}
	if cfg.Storage.Database == "" {
		cfg.Storage.Database = "sessions.db"
	}
	if cfg.Pipeline.ConvertTimeoutSeconds == 0 {
		cfg.Pipeline.ConvertTimeoutSeconds = 120
	}
	if cfg.Pipeline.CompileTimeoutSeconds == 0 {
		cfg.Pipeline.CompileTimeoutSeconds = 300
	}
	if cfg.Training.TimeoutSeconds == 0 {
		cfg.Training.TimeoutSeconds = 30
	}
	if cfg.Training.MaxRetrySeconds == 0 {
		cfg.Training.MaxRetrySeconds = 60
	}
	if cfg.Cleanup.IntervalMinutes == 0 {
		cfg.Cleanup.IntervalMinutes = 60
	}
	if cfg.Cleanup.MaxAgeHours == 0 {
		cfg.Cleanup.MaxAgeHours = 24
	}
	if cfg.Limits.MaxFileSizeMB == 0 {
		cfg.Limits.MaxFileSizeMB = 200
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("MIN_DURATION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MinDurationSeconds = n
		}
	}
	if v := os.Getenv("UPLOADS_DIR"); v != "" {
		cfg.Storage.UploadsDir = v
	}
	if v := os.Getenv("TRAINING_ENDPOINT"); v != "" {
		cfg.Training.Endpoint = v
	}
	if v := os.Getenv("GDRIVE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleDrive.CredentialsFile = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Session.MinDurationSeconds < 0 {
		return fmt.Errorf("session.min_duration_seconds must be >= 0, got %d", c.Session.MinDurationSeconds)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be positive, got %d", c.Workers.Count)
	}
	return nil
}

// ConvertTimeout returns the per-file conversion deadline.
func (c *Config) ConvertTimeout() time.Duration {
	return time.Duration(c.Pipeline.ConvertTimeoutSeconds) * time.Second
}

// CompileTimeout returns the concatenation deadline.
func (c *Config) CompileTimeout() time.Duration {
	return time.Duration(c.Pipeline.CompileTimeoutSeconds) * time.Second
}

// TrainingTimeout returns the per-attempt deadline of the training trigger.
func (c *Config) TrainingTimeout() time.Duration {
	return time.Duration(c.Training.TimeoutSeconds) * time.Second
}

// TrainingMaxRetry returns the total retry budget of the training trigger.
func (c *Config) TrainingMaxRetry() time.Duration {
	return time.Duration(c.Training.MaxRetrySeconds) * time.Second
}
