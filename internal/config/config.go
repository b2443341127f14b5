package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when TRANSCRIBER_CONFIG is not set
const DefaultPath = "config/config.yaml"

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Provider struct {
		BaseURL           string `yaml:"base_url"`
		APIKey            string `yaml:"api_key"`
		Language          string `yaml:"language"`
		TimeoutSeconds    int    `yaml:"timeout_seconds"`
		MaxAttempts       int    `yaml:"max_attempts"`
		RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
		NormalizeAudio    bool   `yaml:"normalize_audio"`
	} `yaml:"provider"`

	Storage struct {
		TempDir   string `yaml:"temp_dir"`
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
	} `yaml:"storage"`

	Watcher struct {
		Workers         int `yaml:"workers"`
		IntervalSeconds int `yaml:"interval_seconds"`
		MaxAttempts     int `yaml:"max_attempts"`
	} `yaml:"watcher"`

	Sweep struct {
		IntervalMinutes   int `yaml:"interval_minutes"`
		StaleAfterMinutes int `yaml:"stale_after_minutes"`
		Parallelism       int `yaml:"parallelism"`
	} `yaml:"sweep"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenDir        string `yaml:"token_dir"`
		FolderName      string `yaml:"folder_name"`
		RedirectURL     string `yaml:"redirect_url"`
	} `yaml:"google_drive"`

	OAuth struct {
		StateMaxAgeMinutes int `yaml:"state_max_age_minutes"`
	} `yaml:"oauth"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`

	Admin struct {
		Token string `yaml:"token"`
	} `yaml:"admin"`
}

// Load reads .env, then the YAML file at path (or TRANSCRIBER_CONFIG, or
// DefaultPath), then applies environment overrides and defaults.
// A missing YAML file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Config: no .env file loaded: %v", err)
	}

	if path == "" {
		path = os.Getenv("TRANSCRIBER_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	var cfg Config
	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("Config: %s not found, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if key := os.Getenv("ASSEMBLYAI_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if token := os.Getenv("ADMIN_TOKEN"); token != "" {
		cfg.Admin.Token = token
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Port, 8080)
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	if c.Provider.Language == "" {
		c.Provider.Language = "en"
	}
	setDefault(&c.Provider.TimeoutSeconds, 30)
	setDefault(&c.Provider.MaxAttempts, 3)
	setDefault(&c.Provider.RetryDelaySeconds, 5)

	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "./temp"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "./outputs"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "./data/transcriber.db"
	}

	setDefault(&c.Watcher.Workers, 2)
	setDefault(&c.Watcher.IntervalSeconds, 30)
	setDefault(&c.Watcher.MaxAttempts, 20)

	setDefault(&c.Sweep.IntervalMinutes, 15)
	setDefault(&c.Sweep.StaleAfterMinutes, 120)
	setDefault(&c.Sweep.Parallelism, 4)

	setDefault(&c.Cleanup.IntervalMinutes, 60)
	setDefault(&c.Cleanup.MaxAgeHours, 24)

	if c.GoogleDrive.TokenDir == "" {
		c.GoogleDrive.TokenDir = "./config/tokens"
	}
	if c.GoogleDrive.FolderName == "" {
		c.GoogleDrive.FolderName = "Meeting Transcripts"
	}
	setDefault(&c.OAuth.StateMaxAgeMinutes, 5)
	setDefault(&c.Limits.MaxFileSizeMB, 500)
}

func setDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// ProviderTimeout is the per-attempt timeout of provider calls
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// ProviderRetryDelay is the base delay between provider attempts
func (c *Config) ProviderRetryDelay() time.Duration {
	return time.Duration(c.Provider.RetryDelaySeconds) * time.Second
}

// WatchInterval is the delay between watcher checks
func (c *Config) WatchInterval() time.Duration {
	return time.Duration(c.Watcher.IntervalSeconds) * time.Second
}

// SweepInterval is the period of the scheduled sweep
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweep.IntervalMinutes) * time.Minute
}

// StaleAfter is the staleness bound for processing jobs
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Sweep.StaleAfterMinutes) * time.Minute
}

// CleanupInterval is the period of the upload janitor
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Cleanup.IntervalMinutes) * time.Minute
}

// CleanupMaxAge is the age after which uploaded files are removed
func (c *Config) CleanupMaxAge() time.Duration {
	return time.Duration(c.Cleanup.MaxAgeHours) * time.Hour
}

// StateMaxAge is the lifetime of an OAuth state token
func (c *Config) StateMaxAge() time.Duration {
	return time.Duration(c.OAuth.StateMaxAgeMinutes) * time.Minute
}
