package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the process configuration of the playkit binary.
type Config struct {
	PackageName        string
	ServiceAccountJSON string
	// Path to a service account key, read when ServiceAccountJSON is empty.
	ServiceAccountFile string
	RedisAddr          string
	HTTPAddr           string
	MetricsAddr        string
	// Comma-separated browser origins allowed to open the purchase stream.
	AllowedOrigins     string
	LogLevel           string
	LogFormat          string

	Workers    int
	QueueSize  int
	FeedSize   int
	FeedStride int
}

var stringVars = []struct {
	name   string
	envVar string
	def    string
}{
	{"PackageName", "PLAYKIT_PACKAGE_NAME", ""},
	{"ServiceAccountJSON", "GOOGLE_PLAY_SERVICE_ACCOUNT_JSON", ""},
	{"ServiceAccountFile", "GOOGLE_PLAY_SERVICE_ACCOUNT_FILE", ""},
	// Optional: product details are cached in memory without it
	{"RedisAddr", "REDIS_ADDR", ""},
	{"HTTPAddr", "PLAYKIT_HTTP_ADDR", ":8080"},
	{"MetricsAddr", "PLAYKIT_METRICS_ADDR", ":9091"},
	{"AllowedOrigins", "PLAYKIT_ALLOWED_ORIGINS", ""},
	{"LogLevel", "LOG_LEVEL", "info"},
	{"LogFormat", "LOG_FORMAT", "json"},
}

var intVars = []struct {
	name   string
	envVar string
	def    int
}{
	{"Workers", "PLAYKIT_WORKERS", 4},
	{"QueueSize", "PLAYKIT_QUEUE_SIZE", 64},
	{"FeedSize", "PLAYKIT_FEED_SIZE", 200},
	{"FeedStride", "PLAYKIT_FEED_STRIDE", 5},
}

// LoadConfig loads configuration from environment variables, after loading the
// nearest .env file found walking up from the working directory.
func LoadConfig() (*Config, error) {
	config := &Config{}

	currentDir, _ := os.Getwd()
	for currentDir != "/" && currentDir != "." {
		envPath := filepath.Join(currentDir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
			break
		}
		currentDir = filepath.Dir(currentDir)
	}

	fields := reflect.ValueOf(config).Elem()
	for _, v := range stringVars {
		value := strings.TrimSpace(os.Getenv(v.envVar))
		if value == "" {
			value = v.def
		}
		fields.FieldByName(v.name).SetString(value)
	}
	for _, v := range intVars {
		value := v.def
		if raw := strings.TrimSpace(os.Getenv(v.envVar)); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", v.envVar, err)
			}
			if n <= 0 {
				return nil, fmt.Errorf("invalid %s: must be greater than 0", v.envVar)
			}
			value = n
		}
		fields.FieldByName(v.name).SetInt(int64(value))
	}

	return config, nil
}

// ValidateServe checks the settings required to talk to Google Play and
// resolves ServiceAccountFile into ServiceAccountJSON.
func (c *Config) ValidateServe() error {
	if c.PackageName == "" {
		return errors.New("missing required environment variable: PLAYKIT_PACKAGE_NAME")
	}
	if c.ServiceAccountJSON == "" && c.ServiceAccountFile != "" {
		raw, err := os.ReadFile(c.ServiceAccountFile)
		if err != nil {
			return fmt.Errorf("read service account file: %w", err)
		}
		c.ServiceAccountJSON = string(raw)
	}
	if c.ServiceAccountJSON == "" {
		return errors.New("missing required environment variable: GOOGLE_PLAY_SERVICE_ACCOUNT_JSON or GOOGLE_PLAY_SERVICE_ACCOUNT_FILE")
	}
	return nil
}

// Origins splits AllowedOrigins, dropping blanks.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
