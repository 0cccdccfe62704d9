package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config.yaml"
	EnvPath     = "PUSHUP_CONFIG"

	LocalBackend  = "local"
	RemoteBackend = "remote"
)

type EngineConfig struct {
	Backend    string   `yaml:"backend"`
	ModelPath  string   `yaml:"modelPath"`
	Names      []string `yaml:"names"`
	NamesFile  string   `yaml:"namesFile"`
	InputSize  int      `yaml:"inputSize"`
	Conf       float32  `yaml:"conf"`
	UseGPU     bool     `yaml:"useGPU"`
	InputName  string   `yaml:"inputName"`
	OutputName string   `yaml:"outputName"`
}

type RemoteConfig struct {
	Address        string `yaml:"address"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type CounterConfig struct {
	Side string `yaml:"side"`
}

type VideoConfig struct {
	DownloadRemote bool   `yaml:"downloadRemote"`
	DownloadDir    string `yaml:"downloadDir"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type ServerConfig struct {
	HTTPPort    int    `yaml:"httpPort"`
	RPCPort     int    `yaml:"rpcPort"`
	WorkersNum  int    `yaml:"workersNum"`
	UploadDir   string `yaml:"uploadDir"`
	MaxUploadMB int64  `yaml:"maxUploadMB"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Remote  RemoteConfig  `yaml:"remote"`
	Counter CounterConfig `yaml:"counter"`
	Video   VideoConfig   `yaml:"video"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Backend:    LocalBackend,
			ModelPath:  "models/yolov8n-pose.onnx",
			InputSize:  640,
			Conf:       0.5,
			InputName:  "images",
			OutputName: "output0",
		},
		Remote: RemoteConfig{
			Address:        "127.0.0.1:50051",
			TimeoutSeconds: 5,
		},
		Counter: CounterConfig{
			Side: "left",
		},
		Video: VideoConfig{
			DownloadRemote: true,
			TimeoutSeconds: 60,
		},
		Server: ServerConfig{
			HTTPPort:    8080,
			RPCPort:     50051,
			WorkersNum:  1,
			UploadDir:   "uploads",
			MaxUploadMB: 200,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path picks the config file: the explicit flag value, then $PUSHUP_CONFIG,
// then config.yaml in the working directory. explicit reports whether the
// caller asked for the file, in which case it must exist.
func Path(flagValue string) (path string, explicit bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env, true
	}
	return DefaultPath, false
}

// Load reads the yaml file over the defaults. A missing file that was not
// asked for explicitly yields the defaults.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with and fills in the ones
// that have a safe fallback.
func (c *Config) Validate() error {
	c.Engine.Backend = strings.ToLower(c.Engine.Backend)
	switch c.Engine.Backend {
	case LocalBackend:
		if c.Engine.ModelPath == "" {
			return fmt.Errorf("engine.modelPath cannot be empty")
		}
		if c.Engine.InputSize <= 0 {
			return fmt.Errorf("engine.inputSize must be positive, got %d", c.Engine.InputSize)
		}
	case RemoteBackend:
		if c.Remote.Address == "" {
			return fmt.Errorf("remote.address cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported engine.backend: %s", c.Engine.Backend)
	}
	if c.Engine.Conf < 0 || c.Engine.Conf > 1 {
		return fmt.Errorf("engine.conf must be between 0.0 and 1.0, got %f", c.Engine.Conf)
	}
	c.Counter.Side = strings.ToLower(c.Counter.Side)
	if c.Counter.Side != "left" && c.Counter.Side != "right" {
		return fmt.Errorf("counter.side must be left or right, got %q", c.Counter.Side)
	}
	if c.Server.WorkersNum <= 0 {
		c.Server.WorkersNum = 1
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = 5
	}
	if c.Video.TimeoutSeconds <= 0 {
		c.Video.TimeoutSeconds = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}
