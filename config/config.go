package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/mit-pdos/go-newfs/disk"
)

type Config struct {
	Device DeviceConfig `yaml:"device"`
	Log    LogConfig    `yaml:"log"`
}

type DeviceConfig struct {
	// Path identifies the device; see disk.Open for the schemes.
	Path   string `yaml:"path" env:"NEWFS_DEVICE" env-required:"true"`
	Size   uint64 `yaml:"size" env:"NEWFS_DEVICE_SIZE" env-default:"4194304"`
	IOSize uint64 `yaml:"io_size" env:"NEWFS_DEVICE_IO_SIZE" env-default:"512"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"NEWFS_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"NEWFS_LOG_FORMAT" env-default:"pretty"` // pretty, text or json
}

func (d DeviceConfig) Params() disk.Params {
	return disk.Params{Size: d.Size, IOSize: d.IOSize}
}

// Load reads the yaml file at path, with environment variables taking
// precedence. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read config from env: %w", err)
		}
		return &cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
