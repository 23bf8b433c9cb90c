package config

// Pool holds the engine constants. Amounts and rates are decimal strings so
// they survive TOML and YAML without float rounding.
type Pool struct {
	Symbol          string `toml:"Symbol" yaml:"symbol"`
	FeeRate         string `toml:"FeeRate" yaml:"fee_rate"`
	MinCollateral   string `toml:"MinCollateral" yaml:"min_collateral"`
	LockCoefficient uint64 `toml:"LockCoefficient" yaml:"lock_coefficient"`
	LockScale       uint64 `toml:"LockScale" yaml:"lock_scale"`
	Operator        string `toml:"Operator" yaml:"operator"`
	Escrow          string `toml:"Escrow" yaml:"escrow"`
	MainPool        string `toml:"MainPool" yaml:"main_pool"`
	MainPoolReward  string `toml:"MainPoolReward" yaml:"main_pool_reward"`
}

// Storage selects the key/value backend: "leveldb", "bolt" or "memory".
type Storage struct {
	Backend string `toml:"Backend" yaml:"backend"`
	Path    string `toml:"Path" yaml:"path"`
}

// EventLog configures the queryable event history. DSN is either a SQLite
// file path or a postgres:// URL; empty disables the log.
type EventLog struct {
	DSN string `toml:"DSN" yaml:"dsn"`
}

// Scheduler tunes unlock callback delivery.
type Scheduler struct {
	RetrySeconds  uint32 `toml:"RetrySeconds" yaml:"retry_seconds"`
	MinIntervalMs uint32 `toml:"MinIntervalMs" yaml:"min_interval_ms"`
	CatchUp       string `toml:"CatchUp" yaml:"catch_up"`
}

// Admin configures the HTTP admin surface. Mutating routes are mounted only
// when AuthSecret is set; the bearer token's signers claim becomes the action
// authority.
type Admin struct {
	ListenAddress     string `toml:"ListenAddress" yaml:"listen"`
	MaxRequestsPerMin uint32 `toml:"MaxRequestsPerMin" yaml:"max_requests_per_min"`
	AuthSecret        string `toml:"AuthSecret" yaml:"auth_secret"`
	AuthIssuer        string `toml:"AuthIssuer" yaml:"auth_issuer"`
	AuthAudience      string `toml:"AuthAudience" yaml:"auth_audience"`
}

// Log configures structured logging. File enables size-based rotation.
type Log struct {
	Environment string `toml:"Environment" yaml:"environment"`
	Level       string `toml:"Level" yaml:"level"`
	File        string `toml:"File" yaml:"file"`
	MaxSizeMB   int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups  int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays  int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// Telemetry configures OTLP export. An empty endpoint disables exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
}

type Pauses struct {
	Pool bool `toml:"Pool" yaml:"pool"`
}

// GenesisAccount is created on first start and credited with Balance.
type GenesisAccount struct {
	Name    string `toml:"Name" yaml:"name"`
	Balance string `toml:"Balance" yaml:"balance"`
}
