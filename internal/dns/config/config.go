package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log       LoggingConfig   `koanf:"log"`
	Relay     RelayConfig     `koanf:"relay"`
	Cache     CacheConfig     `koanf:"cache"`
	Blocklist BlocklistConfig `koanf:"blocklist"`
	Seed      SeedConfig      `koanf:"seed"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// LoggingConfig controls log verbosity and an optional log file.
type LoggingConfig struct {
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
	// File is appended to the log outputs when set.
	File string `koanf:"file"`
}

// RelayConfig is the client-facing port and the upstream resolver.
type RelayConfig struct {
	Port int `koanf:"port" validate:"required,gte=1,lte=65535"`
	// Upstream is the recursive resolver in ip:port format.
	Upstream     string        `koanf:"upstream" validate:"required,ip_port"`
	QueryTimeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// CacheConfig sizes the record cache.
type CacheConfig struct {
	Size uint `koanf:"size" validate:"required,gte=1"`
}

// BlocklistCacheConfig sizes the blacklist decision cache. Zero disables it.
type BlocklistCacheConfig struct {
	Size uint `koanf:"size"`
}

// BlocklistConfig configures the blacklist store and its inputs.
type BlocklistConfig struct {
	// Files are plain domain lists, one name per line.
	Files      []string             `koanf:"files"`
	DB         string               `koanf:"db" validate:"required"`
	Cache      BlocklistCacheConfig `koanf:"cache"`
	FPRate     float64              `koanf:"fp_rate" validate:"gt=0,lt=1"`
	MaxEntries int                  `koanf:"max_entries" validate:"gte=1"`
}

// SeedConfig lists the static sources loaded into the cache at startup.
type SeedConfig struct {
	HostsFiles []string      `koanf:"hosts"`
	ZoneDir    string        `koanf:"zones"`
	ZoneTTL    time.Duration `koanf:"zone_ttl" validate:"gt=0"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}

// DEFAULT_APP_CONFIG defines the default application configuration settings
// for the relay.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{
		Level: "info",
	},
	Relay: RelayConfig{
		Port:         53,
		Upstream:     "1.1.1.1:53",
		QueryTimeout: 10 * time.Second,
	},
	Cache: CacheConfig{
		Size: 1000,
	},
	Blocklist: BlocklistConfig{
		Files:      []string{},
		DB:         "/var/lib/rr-relay/blocklist.db",
		Cache:      BlocklistCacheConfig{Size: 1000},
		FPRate:     0.01,
		MaxEntries: 1000,
	},
	Seed: SeedConfig{
		HostsFiles: []string{"/etc/hosts"},
		ZoneDir:    "",
		ZoneTTL:    300 * time.Second,
	},
	Metrics: MetricsConfig{
		Addr: "",
	},
}

// envKeys maps DNS_* variables (prefix removed, lowercased) to config paths.
var envKeys = map[string]string{
	"env":                   "env",
	"log_level":             "log.level",
	"log_file":              "log.file",
	"port":                  "relay.port",
	"upstream":              "relay.upstream",
	"query_timeout":         "relay.timeout",
	"cache_size":            "cache.size",
	"blocklist_files":       "blocklist.files",
	"blocklist_db":          "blocklist.db",
	"blocklist_cache_size":  "blocklist.cache.size",
	"blocklist_fp_rate":     "blocklist.fp_rate",
	"blocklist_max_entries": "blocklist.max_entries",
	"hosts_files":           "seed.hosts",
	"zone_dir":              "seed.zones",
	"zone_ttl":              "seed.zone_ttl",
	"metrics_addr":          "metrics.addr",
}

// listKeys are config paths whose values split on spaces and commas.
var listKeys = map[string]bool{
	"blocklist.files": true,
	"seed.hosts":      true,
}

// validIPPort validates whether the provided field value is a valid IP address and port combination.
// It expects the value to be in the format "IP:Port". The function returns true if the IP address
// is valid and both the IP and port are non-empty; otherwise, it returns false.
func validIPPort(fl validator.FieldLevel) bool {
	// stringify the field value to get the IP:Port format.
	addr := fl.Field().String()
	// Split the address into IP and port.
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	// Check if the IP address is valid.
	if net.ParseIP(ip) == nil {
		return false
	}
	// Check if the port is a valid number between 1 and 65535.
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// transformEnv maps one DNS_* variable onto its config path. Unknown
// variables return an empty key, which the env provider skips.
func transformEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, "DNS_"))
	path, ok := envKeys[key]
	if !ok {
		return "", nil
	}
	value = strings.TrimSpace(value)

	if listKeys[path] {
		return path, splitList(value)
	}
	return path, value
}

func splitList(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == ','
	})
}

// envLoader is a function that loads environment variables with the prefix "DNS_".
// It maps the flat names onto nested config paths
// and can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix:        "DNS_",
		TransformFunc: transformEnv,
	}), nil)
}

// defaultLoader loads default configuration values into the provided Koanf instance
// using the structs provider and the DEFAULT_APP_CONFIG struct. It returns an error
// if loading fails.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers a custom validation function "ip_port" with the provided validator.
// It associates the "ip_port" tag with the validIPPort validation logic.
// Returns an error if registration fails.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ip_port", validIPPort)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	cfg.Blocklist.Files = compact(cfg.Blocklist.Files)
	cfg.Seed.HostsFiles = compact(cfg.Seed.HostsFiles)

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// ListenAddr is the UDP address the relay binds.
func (c *AppConfig) ListenAddr() string {
	return net.JoinHostPort("", strconv.Itoa(c.Relay.Port))
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
