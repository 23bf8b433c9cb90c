package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings of the pool host daemon.
type Config struct {
	Pool      Pool             `toml:"Pool" yaml:"pool"`
	Storage   Storage          `toml:"Storage" yaml:"storage"`
	EventLog  EventLog         `toml:"EventLog" yaml:"event_log"`
	Scheduler Scheduler        `toml:"Scheduler" yaml:"scheduler"`
	Admin     Admin            `toml:"Admin" yaml:"admin"`
	Log       Log              `toml:"Log" yaml:"log"`
	Telemetry Telemetry        `toml:"Telemetry" yaml:"telemetry"`
	Pauses    Pauses           `toml:"Pauses" yaml:"pauses"`
	Genesis   []GenesisAccount `toml:"Genesis" yaml:"genesis"`
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		Pool: Pool{
			Symbol:          "4,AIM",
			FeeRate:         "0.5",
			MinCollateral:   "100000.0000 AIM",
			LockCoefficient: 57_000,
			LockScale:       100_000,
			Operator:        "aim",
			Escrow:          "escrow.aim",
			MainPool:        "mainpool.aim",
			MainPoolReward:  "0.1",
		},
		Storage:   Storage{Backend: "leveldb", Path: "./poolhost-data/state"},
		EventLog:  EventLog{DSN: "./poolhost-data/events.db"},
		Scheduler: Scheduler{RetrySeconds: 5, MinIntervalMs: 100, CatchUp: "@every 1m"},
		Admin:     Admin{ListenAddress: "127.0.0.1:8090", MaxRequestsPerMin: 600},
		Log:       Log{Environment: "dev", Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		Genesis:   []GenesisAccount{},
	}
}

// Load loads the configuration from path, writing the defaults there first
// when the file does not exist. Files ending in .yaml or .yml are YAML;
// everything else is TOML.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	if isYAML(path) {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		encoder := yaml.NewEncoder(f)
		defer encoder.Close()
		return encoder.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	p := &cfg.Pool
	for _, field := range []*string{&p.Symbol, &p.FeeRate, &p.MinCollateral, &p.Operator, &p.Escrow, &p.MainPool, &p.MainPoolReward} {
		*field = strings.TrimSpace(*field)
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "leveldb"
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	cfg.EventLog.DSN = strings.TrimSpace(cfg.EventLog.DSN)
	cfg.Scheduler.CatchUp = strings.TrimSpace(cfg.Scheduler.CatchUp)
	cfg.Admin.ListenAddress = strings.TrimSpace(cfg.Admin.ListenAddress)
	cfg.Admin.AuthSecret = strings.TrimSpace(cfg.Admin.AuthSecret)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	for i := range cfg.Genesis {
		cfg.Genesis[i].Name = strings.TrimSpace(cfg.Genesis[i].Name)
		cfg.Genesis[i].Balance = strings.TrimSpace(cfg.Genesis[i].Balance)
	}
}
