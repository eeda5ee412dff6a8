package config

import (
	"fmt"
	"net/url"
	"time"
)

// Session modes.
const (
	ModeLaunch = "launch"
	ModeAttach = "attach"
	ModeHTTP   = "http"
	ModeFile   = "file"
)

// GalleryURL is the template gallery the exporter works on.
const GalleryURL = "https://www.coze.cn/template"

// Config holds exporter configuration.
type Config struct {
	Mode           string // launch, attach, http or file
	TargetURL      string
	EligiblePrefix string
	RemoteURL      string
	ChromePath     string
	Headless       bool
	HTMLFile       string
	PageURL        string
	OutputDir      string
	Timeout        time.Duration
	RenderWait     time.Duration
	UserAgent      string
	Verbose        bool
	MetricsAddr    string
	ListenAddr     string
	LogFile        string
}

// DefaultConfig returns defaults for exporting from the public gallery.
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeLaunch,
		TargetURL:      GalleryURL,
		EligiblePrefix: GalleryURL,
		RemoteURL:      "http://127.0.0.1:9222",
		Headless:       true,
		OutputDir:      "output",
		Timeout:        30 * time.Second,
		RenderWait:     3 * time.Second,
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ListenAddr:     ":8080",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLaunch, ModeHTTP:
		if err := validateURL("target URL", c.TargetURL); err != nil {
			return err
		}
	case ModeAttach:
		if err := validateURL("remote URL", c.RemoteURL); err != nil {
			return err
		}
	case ModeFile:
		if c.HTMLFile == "" {
			return fmt.Errorf("html file cannot be empty in file mode")
		}
		if c.PageURL != "" {
			if err := validateURL("page URL", c.PageURL); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("mode must be launch, attach, http, or file")
	}

	if c.EligiblePrefix == "" {
		return fmt.Errorf("eligible prefix cannot be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RenderWait < 0 {
		return fmt.Errorf("render wait cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
