package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the exporter reads.
const EnvPrefix = "EXPORT_"

// LoadEnvFile loads path into the process environment. When path does not
// exist and example does, example is copied to path first. Variables that
// are already set keep their value. A missing file is not an error.
func LoadEnvFile(path, example string) (copied bool, err error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		copied, err = copyIfExists(example, path)
		if err != nil {
			return false, err
		}
		if !copied {
			return false, nil
		}
	} else if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	if err := godotenv.Load(path); err != nil {
		return copied, fmt.Errorf("load %s: %w", path, err)
	}
	return copied, nil
}

func copyIfExists(src, dst string) (bool, error) {
	if src == "" {
		return false, nil
	}
	data, err := os.ReadFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", dst, err)
	}
	return true, nil
}

// EnvString returns the value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value := os.Getenv(key)
	return value, value != ""
}

// EnvBool parses key as a boolean. Only "true" and "false" are accepted.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	switch value {
	case "true":
		return true, true, nil
	case "false":
		return false, true, nil
	}
	return false, false, fmt.Errorf("invalid value for <%s>: use 'true' or 'false'", key)
}

// EnvDuration parses key as a duration ("30s", "1m").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("invalid value for <%s>: %w", key, err)
	}
	return d, true, nil
}

// ApplyEnv overlays EXPORT_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	texts := []struct {
		key string
		dst *string
	}{
		{"MODE", &c.Mode},
		{"TARGET_URL", &c.TargetURL},
		{"ELIGIBLE_PREFIX", &c.EligiblePrefix},
		{"REMOTE_URL", &c.RemoteURL},
		{"CHROME_PATH", &c.ChromePath},
		{"HTML_FILE", &c.HTMLFile},
		{"PAGE_URL", &c.PageURL},
		{"OUTPUT_DIR", &c.OutputDir},
		{"USER_AGENT", &c.UserAgent},
		{"METRICS_ADDR", &c.MetricsAddr},
		{"LISTEN_ADDR", &c.ListenAddr},
		{"LOG_FILE", &c.LogFile},
	}
	for _, s := range texts {
		if value, ok := EnvString(EnvPrefix + s.key); ok {
			*s.dst = value
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TIMEOUT", &c.Timeout},
		{"RENDER_WAIT", &c.RenderWait},
	}
	for _, d := range durations {
		value, ok, err := EnvDuration(EnvPrefix + d.key)
		if err != nil {
			return err
		}
		if ok {
			*d.dst = value
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"HEADLESS", &c.Headless},
		{"VERBOSE", &c.Verbose},
	}
	for _, b := range bools {
		value, ok, err := EnvBool(EnvPrefix + b.key)
		if err != nil {
			return err
		}
		if ok {
			*b.dst = value
		}
	}

	return nil
}
