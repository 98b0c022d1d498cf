package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v2"

	"dbw-can-bridge/dbw"
)

// Bus drivers.
const (
	DriverSocketCAN = "socketcan"
	DriverBrutella  = "brutella"
	DriverSim       = "sim"
)

const defaultOperatorPeriod = 100 * time.Millisecond

// Config is assembled from defaults, an optional YAML file, DBW_* environment
// variables and finally command-line flags, in that order.
type Config struct {
	Driver      string        `yaml:"driver" env:"DBW_DRIVER"`
	Interface   string        `yaml:"interface" env:"DBW_IFACE"`
	Bitrate     uint32        `yaml:"bitrate" env:"DBW_BITRATE"`
	TxPeriod    time.Duration `yaml:"tx_period" env:"DBW_TX_PERIOD"`
	SimTxPeriod time.Duration `yaml:"sim_tx_period" env:"DBW_SIM_TX_PERIOD"`
	RxPeriod    time.Duration `yaml:"rx_period" env:"DBW_RX_PERIOD"`
	RxBatch     int           `yaml:"rx_batch" env:"DBW_RX_BATCH"`
	RxBuffer    int           `yaml:"rx_buffer" env:"DBW_RX_BUFFER"`
	FixturePath string        `yaml:"fixture" env:"DBW_FIXTURE"`

	LogPath  string `yaml:"log_file" env:"DBW_LOG_FILE"`
	LogLevel string `yaml:"log_level" env:"DBW_LOG_LEVEL"`

	OperatorPeriod time.Duration   `yaml:"operator_period" env:"DBW_OPERATOR_PERIOD"`
	MaxSteerDeg    float64         `yaml:"max_steer_deg" env:"DBW_MAX_STEER_DEG"`
	ScriptPath     string          `yaml:"script" env:"DBW_SCRIPT"`
	SpeedHold      SpeedHoldConfig `yaml:"speed_hold"`

	HTTPAddr string `yaml:"http_addr" env:"DBW_HTTP_ADDR"`
	Shell    bool   `yaml:"shell" env:"DBW_SHELL"`
}

func DefaultConfig() Config {
	return Config{
		Driver:         DriverSocketCAN,
		Interface:      "can0",
		Bitrate:        500000,
		TxPeriod:       dbw.DefaultTxPeriod,
		SimTxPeriod:    dbw.DefaultSimTxPeriod,
		RxPeriod:       dbw.DefaultRxPeriod,
		RxBatch:        dbw.DefaultRxBatch,
		RxBuffer:       dbw.DefaultRxBuffer,
		LogPath:        "dbw_bridge.log",
		LogLevel:       "info",
		OperatorPeriod: defaultOperatorPeriod,
		MaxSteerDeg:    dbw.DefaultMaxSteerDeg,
		SpeedHold:      DefaultSpeedHoldConfig(),
	}
}

// LoadConfig layers the YAML file at path (if any) and the environment over
// the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverSocketCAN, DriverBrutella, DriverSim:
	default:
		return fmt.Errorf("unknown driver %q (socketcan|brutella|sim)", c.Driver)
	}
	if c.Driver != DriverSim && c.Interface == "" {
		return fmt.Errorf("driver %s needs an interface", c.Driver)
	}
	if c.TxPeriod <= 0 || c.SimTxPeriod <= 0 || c.RxPeriod <= 0 || c.OperatorPeriod <= 0 {
		return fmt.Errorf("loop periods must be positive")
	}
	if c.RxBatch <= 0 {
		return fmt.Errorf("rx_batch must be positive, got %d", c.RxBatch)
	}
	if c.MaxSteerDeg <= 0 || c.MaxSteerDeg > 500 {
		return fmt.Errorf("max_steer_deg must be in (0, 500], got %.1f", c.MaxSteerDeg)
	}
	return nil
}

// Controller derives the loop configuration. The simulated driver transmits
// at its own, slower period.
func (c Config) Controller() dbw.Config {
	tx := c.TxPeriod
	if c.Driver == DriverSim {
		tx = c.SimTxPeriod
	}
	return dbw.Config{
		TxPeriod:    tx,
		RxPeriod:    c.RxPeriod,
		RxBatch:     c.RxBatch,
		FixturePath: c.FixturePath,
	}
}
