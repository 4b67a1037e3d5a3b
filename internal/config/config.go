package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/obiente/translate/w2vfeat/internal/embed"
)

const (
	FormatNPY   = "npy"
	FormatArrow = "arrow"

	DefaultLayer = 14
)

// Config carries everything an extraction run needs. Environment variables
// provide defaults; command-line flags override them.
type Config struct {
	DataDir    string
	Split      string
	SaveDir    string
	Checkpoint string
	Layer      int

	Backend     string
	Worker      string
	RemoteURL   string
	Timeout     time.Duration
	Format      string
	MetricsFile string
	Progress    bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func Load() Config {
	return Config{
		Layer:       DefaultLayer,
		Backend:     getenv("W2V_BACKEND", embed.BackendWorker),
		Worker:      getenv("W2V_WORKER", embed.DefaultWorker),
		RemoteURL:   getenv("W2V_REMOTE_URL", ""),
		Timeout:     time.Duration(getenvInt("W2V_TIMEOUT", 300)) * time.Second,
		Format:      getenv("W2V_FORMAT", FormatNPY),
		MetricsFile: getenv("W2V_METRICS_FILE", ""),
		Progress:    getenvBool("W2V_PROGRESS", true),
	}
}

// Validate checks the run configuration before anything touches disk.
func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data directory is required"))
	}
	if c.Split == "" {
		errs = append(errs, errors.New("--split is required"))
	}
	if c.SaveDir == "" {
		errs = append(errs, errors.New("--save-dir is required"))
	}
	if c.Checkpoint == "" {
		errs = append(errs, errors.New("--checkpoint is required"))
	}
	if c.Layer < 0 {
		errs = append(errs, fmt.Errorf("invalid layer %d (must be >= 0)", c.Layer))
	}
	switch c.Backend {
	case embed.BackendWorker:
		if len(embed.ParseCommand(c.Worker)) == 0 {
			errs = append(errs, errors.New("worker backend needs a worker command"))
		}
	case embed.BackendRemote:
		if c.RemoteURL == "" {
			errs = append(errs, errors.New("remote backend needs W2V_REMOTE_URL or --remote-url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Format != FormatNPY && c.Format != FormatArrow {
		errs = append(errs, fmt.Errorf("unknown format %q (want %s or %s)", c.Format, FormatNPY, FormatArrow))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("invalid timeout %s", c.Timeout))
	}
	return errors.Join(errs...)
}

// EmbedOptions maps the configuration onto the model boundary.
func (c Config) EmbedOptions() embed.Options {
	return embed.Options{
		Backend:    c.Backend,
		Checkpoint: c.Checkpoint,
		Layer:      c.Layer,
		Worker:     embed.ParseCommand(c.Worker),
		URL:        c.RemoteURL,
		Timeout:    c.Timeout,
	}
}

func (c Config) ArrayExt() string {
	if c.Format == FormatArrow {
		return ".arrow"
	}
	return ".npy"
}
