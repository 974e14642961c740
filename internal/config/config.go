package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. CODEGENIE_LISTEN_ADDR
// or CODEGENIE_SANDBOX_MAX_TIMEOUT_S.
const EnvPrefix = "CODEGENIE"

// envFile is loaded into the process environment before configuration is
// read. A missing file is not an error.
var envFile = ".env"

// StoreConfig selects the build store. DBPath is only used by sqlite.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DBPath string `mapstructure:"db_path"`
}

// SandboxConfig controls the execution engine. Timeouts are in seconds.
type SandboxConfig struct {
	Isolation       string `mapstructure:"isolation"`
	WorkDir         string `mapstructure:"work_dir"`
	DefaultTimeoutS int    `mapstructure:"default_timeout_s"`
	MaxTimeoutS     int    `mapstructure:"max_timeout_s"`
	MaxOutputBytes  int    `mapstructure:"max_output_bytes"`
	KillGraceS      int    `mapstructure:"kill_grace_s"`
}

// DockerConfig enables the container backend and the docker build and
// deploy stages, and sets their container limits.
type DockerConfig struct {
	Enabled  bool  `mapstructure:"enabled"`
	MemoryMB int64 `mapstructure:"memory_mb"`
	Network  bool  `mapstructure:"network"`
}

// PipelineConfig holds build pipeline settings. A zero StageTimeoutS
// disables the per-stage timeout.
type PipelineConfig struct {
	StageTimeoutS int    `mapstructure:"stage_timeout_s"`
	ArtifactDir   string `mapstructure:"artifact_dir"`
}

// LLMConfig points at an OpenAI-compatible endpoint for the assist
// features and the review stage.
type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// Enabled reports whether a text-generation endpoint is configured.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" || c.BaseURL != ""
}

// Config holds application configuration.
type Config struct {
	ListenAddr string         `mapstructure:"listen_addr"`
	LogLevel   string         `mapstructure:"log_level"`
	Store      StoreConfig    `mapstructure:"store"`
	Sandbox    SandboxConfig  `mapstructure:"sandbox"`
	Docker     DockerConfig   `mapstructure:"docker"`
	Pipeline   PipelineConfig `mapstructure:"pipeline"`
	LLM        LLMConfig      `mapstructure:"llm"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.db_path", ":memory:")

	v.SetDefault("sandbox.isolation", "process")
	v.SetDefault("sandbox.work_dir", os.TempDir())
	v.SetDefault("sandbox.default_timeout_s", 10)
	v.SetDefault("sandbox.max_timeout_s", 60)
	v.SetDefault("sandbox.max_output_bytes", 1<<20)
	v.SetDefault("sandbox.kill_grace_s", 2)

	v.SetDefault("docker.enabled", false)
	v.SetDefault("docker.memory_mb", 256)
	v.SetDefault("docker.network", false)

	v.SetDefault("pipeline.stage_timeout_s", 300)
	v.SetDefault("pipeline.artifact_dir", filepath.Join(os.TempDir(), "codegenie-artifacts"))

	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
}

// Load reads configuration from defaults, the optional YAML file at path,
// and CODEGENIE_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated values and limits.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("store.driver must be memory or sqlite, got %q", c.Store.Driver)
	}
	switch c.Sandbox.Isolation {
	case "process", "docker", "auto":
	default:
		return fmt.Errorf("sandbox.isolation must be process, docker or auto, got %q", c.Sandbox.Isolation)
	}
	if c.Sandbox.Isolation == "docker" && !c.Docker.Enabled {
		return errors.New("sandbox.isolation is docker but docker.enabled is false")
	}
	if c.Sandbox.DefaultTimeoutS <= 0 || c.Sandbox.MaxTimeoutS < c.Sandbox.DefaultTimeoutS {
		return fmt.Errorf("sandbox timeouts invalid: default %d, max %d", c.Sandbox.DefaultTimeoutS, c.Sandbox.MaxTimeoutS)
	}
	if c.Pipeline.StageTimeoutS < 0 {
		return fmt.Errorf("pipeline.stage_timeout_s must not be negative, got %d", c.Pipeline.StageTimeoutS)
	}
	return nil
}

// ParseLogLevel maps a level name to a zap level. Unknown names map to info.
func ParseLogLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger creates a structured JSON logger writing to w at the given level.
func NewLogger(w io.Writer, level string) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), ParseLogLevel(level))
	return zap.New(core)
}
