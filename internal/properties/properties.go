package properties

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type PipelineConfig struct {
	Order          string `yaml:"channel_order"`
	Layout         string `yaml:"layout"`
	Mode           string `yaml:"target_mode"`
	ComputeIndices bool   `yaml:"compute_indices"`
	Format         string `yaml:"output_format"`
	Workers        int    `yaml:"workers"`
	Progress       bool   `yaml:"progress"`
}

type ModelConfig struct {
	Backend      string        `yaml:"backend"`
	Path         string        `yaml:"path"`
	LibraryPath  string        `yaml:"library_path"`
	Address      string        `yaml:"address"`
	Channels     int           `yaml:"channels"`
	Timeout      time.Duration `yaml:"timeout"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Scopes       []string      `yaml:"scopes"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	UploadDir      string   `yaml:"upload_dir"`
	ResultDir      string   `yaml:"result_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadMB    int64    `yaml:"max_upload_mb"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type NotificationConfig struct {
	DiscordErrorURL   string `yaml:"discord_error_url"`
	DiscordSuccessURL string `yaml:"discord_success_url"`
}

type Config struct {
	RootPath      string             `yaml:"root_path"`
	LogLevel      string             `yaml:"log_level"`
	LogJSON       bool               `yaml:"log_json"`
	CacheDir      string             `yaml:"cache_dir"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Model         ModelConfig        `yaml:"model"`
	HTTP          HTTPConfig         `yaml:"http"`
	Mongo         MongoConfig        `yaml:"mongo"`
	Notifications NotificationConfig `yaml:"notifications"`
}

func Defaults() Config {
	return Config{
		RootPath: ".",
		LogLevel: "info",
		CacheDir: "data/cache",
		Pipeline: PipelineConfig{
			Order:          "rgb-14-v1",
			Layout:         "flat",
			Mode:           "single",
			ComputeIndices: true,
			Format:         "png",
		},
		Model: ModelConfig{
			Backend:  "grpc",
			Address:  "localhost:50051",
			Channels: 13,
			Timeout:  60 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			UploadDir:      "uploads",
			ResultDir:      "tmp",
			AllowedOrigins: []string{"*"},
			MaxUploadMB:    512,
		},
		Mongo: MongoConfig{Database: "intellicrop"},
	}
}

// LoadEnv loads the first .env file found among paths. A missing file is not an
// error; the process environment is used as is.
func LoadEnv(paths ...string) {
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
}

// Load builds the configuration from defaults, then the optional YAML file, then the
// environment.
func Load(yamlPath string) (Config, error) {
	cfg := Defaults()
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", yamlPath, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.RootPath, "ROOT_PATH")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.CacheDir, "CACHE_DIR")

	setString(&cfg.Pipeline.Order, "CHANNEL_ORDER")
	setString(&cfg.Pipeline.Layout, "DATASET_LAYOUT")
	setString(&cfg.Pipeline.Mode, "TARGET_MODE")
	setString(&cfg.Pipeline.Format, "OUTPUT_FORMAT")

	setString(&cfg.Model.Backend, "MODEL_BACKEND")
	setString(&cfg.Model.Path, "MODEL_PATH")
	setString(&cfg.Model.LibraryPath, "ONNX_LIBRARY_PATH")
	setString(&cfg.Model.Address, "MODEL_ADDRESS")
	setString(&cfg.Model.TokenURL, "MODEL_TOKEN_URL")
	setString(&cfg.Model.ClientID, "MODEL_CLIENT_ID")
	setString(&cfg.Model.ClientSecret, "MODEL_CLIENT_SECRET")
	if v := os.Getenv("MODEL_SCOPES"); v != "" {
		cfg.Model.Scopes = strings.Split(v, ",")
	}

	setString(&cfg.HTTP.Addr, "HTTP_ADDR")
	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTP.Addr = ":" + port
	}
	setString(&cfg.HTTP.UploadDir, "UPLOAD_DIR")
	setString(&cfg.HTTP.ResultDir, "RESULT_DIR")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = strings.Split(v, ",")
	}

	setString(&cfg.Mongo.URI, "MONGO_URI")
	setString(&cfg.Mongo.Database, "MONGO_DB")

	setString(&cfg.Notifications.DiscordErrorURL, "DISCORD_ERROR_NOTIFICATION_URL")
	setString(&cfg.Notifications.DiscordSuccessURL, "DISCORD_SUCCESS_NOTIFICATION_URL")

	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"LOG_JSON", &cfg.LogJSON},
		{"COMPUTE_INDICES", &cfg.Pipeline.ComputeIndices},
		{"SHOW_PROGRESS", &cfg.Pipeline.Progress},
	} {
		if v := os.Getenv(b.key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", b.key, err)
			}
			*b.dst = parsed
		}
	}

	for _, n := range []struct {
		key string
		dst *int
	}{
		{"MODEL_CHANNELS", &cfg.Model.Channels},
		{"ASSEMBLY_WORKERS", &cfg.Pipeline.Workers},
	} {
		if v := os.Getenv(n.key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", n.key, err)
			}
			*n.dst = parsed
		}
	}

	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_MB: %w", err)
		}
		cfg.HTTP.MaxUploadMB = parsed
	}

	if v := os.Getenv("MODEL_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("invalid MODEL_TIMEOUT: %w", err)
		}
		cfg.Model.Timeout = d
	}
	return nil
}

// parseTimeout accepts a Go duration or a number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
