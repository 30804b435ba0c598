package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logger    LoggerConfig    `yaml:"logger"`
	KV        KVConfig        `yaml:"kv"`
	Redis     RedisConfig     `yaml:"redis"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	WorkOrder WorkOrderConfig `yaml:"work_order"`
	Enclave   EnclaveConfig   `yaml:"enclave"`
	Queue     QueueConfig     `yaml:"queue"`
	Chain     ChainConfig     `yaml:"chain"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // optional bearer key for the JSON-RPC endpoint, auth disabled when empty
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// KV backends
const (
	KVBackendBadger = "badger"
	KVBackendRedis  = "redis"
	KVBackendMySQL  = "mysql"
)

// KVConfig selects the key-value store holding work-order, worker and receipt tables
type KVConfig struct {
	Backend     string `yaml:"backend"`      // badger, redis, mysql
	BadgerPath  string `yaml:"badger_path"`  // data directory for the embedded store
	TablePrefix string `yaml:"table_prefix"` // key prefix for the redis backend
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis address was configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// WorkOrderConfig admission, pagination and synchronous-submit settings
type WorkOrderConfig struct {
	MaxWorkOrderCount int           `yaml:"max_work_order_count"`
	PageSize          int           `yaml:"page_size"`
	SyncMode          bool          `yaml:"sync_mode"`
	SyncTimeout       time.Duration `yaml:"sync_timeout"`
	AutoReceipt       bool          `yaml:"auto_receipt"` // create a signed PENDING receipt for every accepted work order
}

// Attestation types
const (
	AttestationSimulated = "simulated"
	AttestationEPID      = "epid"
	AttestationDCAP      = "dcap"
)

// EnclaveConfig enclave manager configuration
type EnclaveConfig struct {
	Attestation       string        `yaml:"attestation"`       // simulated, epid, dcap
	QuoteServiceURL   string        `yaml:"quote_service_url"` // required for epid and dcap
	SigningKey        string        `yaml:"signing_key"`       // hex secp256k1 key, generated when empty
	WorkerID          string        `yaml:"worker_id"`
	OrganizationID    string        `yaml:"organization_id"`
	ApplicationTypeID []string      `yaml:"application_type_ids"`
	RegistryURI       string        `yaml:"registry_uri"`
	AdvertisedURL     string        `yaml:"advertised_url"` // work order URI published in the worker details
	PollInterval      time.Duration `yaml:"poll_interval"`
}

// QueueConfig queue configuration
type QueueConfig struct {
	Enabled     bool `yaml:"enabled"`      // wake the processor through asynq instead of polling only
	Concurrency int  `yaml:"concurrency"`  // queue processing concurrency
	MaxRetry    int  `yaml:"max_retry"`    // maximum retry count
	TaskTimeout int  `yaml:"task_timeout"` // task timeout (seconds)
}

// Chain backends
const (
	ChainBackendMemory   = "memory"
	ChainBackendCometBFT = "cometbft"
)

// ChainConfig on-chain registry configuration
type ChainConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Backend      string        `yaml:"backend"` // memory, cometbft
	RPCAddress   string        `yaml:"rpc_address"`
	RPCTimeout   time.Duration `yaml:"rpc_timeout"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// Defaults
const (
	DefaultPort              = 1947
	DefaultPageSize          = 10
	DefaultMaxWorkOrderCount = 100
	DefaultSyncTimeout       = 60 * time.Second
	DefaultSyncInterval      = 30 * time.Second
	DefaultPollInterval      = 2 * time.Second
	DefaultRPCTimeout        = 10 * time.Second
	DefaultBadgerPath        = "data/kv"
	DefaultWorkerID          = "6ba1f459476bc43b65fd554f6b65910a8f551e4bcb0eee6a96dcebaeb14f2ae9"
)

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		return err
	}

	GlobalConfig = cfg
	return nil
}

// Load reads a YAML config file and applies defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config data and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	validateAndApplyDefaults(&cfg)
	return &cfg, nil
}

// validateAndApplyDefaults replaces zero or invalid values with defaults
func validateAndApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}

	switch cfg.KV.Backend {
	case KVBackendBadger, KVBackendRedis, KVBackendMySQL:
	default:
		cfg.KV.Backend = KVBackendBadger
	}
	if cfg.KV.BadgerPath == "" {
		cfg.KV.BadgerPath = DefaultBadgerPath
	}

	if cfg.WorkOrder.PageSize <= 0 {
		cfg.WorkOrder.PageSize = DefaultPageSize
	}
	if cfg.WorkOrder.MaxWorkOrderCount <= 0 {
		cfg.WorkOrder.MaxWorkOrderCount = DefaultMaxWorkOrderCount
	}
	if cfg.WorkOrder.SyncTimeout <= 0 {
		cfg.WorkOrder.SyncTimeout = DefaultSyncTimeout
	}

	switch cfg.Enclave.Attestation {
	case AttestationSimulated, AttestationEPID, AttestationDCAP:
	default:
		cfg.Enclave.Attestation = AttestationSimulated
	}
	if cfg.Enclave.WorkerID == "" {
		cfg.Enclave.WorkerID = DefaultWorkerID
	}
	if cfg.Enclave.PollInterval <= 0 {
		cfg.Enclave.PollInterval = DefaultPollInterval
	}
	if cfg.Enclave.AdvertisedURL == "" {
		cfg.Enclave.AdvertisedURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Queue.TaskTimeout <= 0 {
		cfg.Queue.TaskTimeout = 60
	}
	if cfg.Queue.MaxRetry < 0 {
		cfg.Queue.MaxRetry = 0
	}

	switch cfg.Chain.Backend {
	case ChainBackendMemory, ChainBackendCometBFT:
	default:
		cfg.Chain.Backend = ChainBackendMemory
	}
	if cfg.Chain.SyncInterval <= 0 {
		cfg.Chain.SyncInterval = DefaultSyncInterval
	}
	if cfg.Chain.RPCTimeout <= 0 {
		cfg.Chain.RPCTimeout = DefaultRPCTimeout
	}
}
