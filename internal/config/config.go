// 包 config：服务进程的环境变量配置
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"gbfs-sync/internal/utils"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"

	SourceFile     = "file"
	SourcePostgres = "postgres"

	LeaderStatic = "static"
	LeaderRedis  = "redis"
)

// Config：各组件的启动参数；Redis 与 PostgreSQL 的连接参数由 utils 单独读取
type Config struct {
	Addr    string
	APIBase string

	TLSEnable   bool
	TLSCertPath string
	TLSKeyPath  string

	StoreBackend    string
	ProvidersSource string
	ProvidersFile   string
	ReloadInterval  time.Duration

	LeaderMode     string
	LeaderStatic   bool
	LeaderKey      string
	LeaderLeaseTTL time.Duration

	VehicleMinTTL time.Duration
	VehicleMaxTTL time.Duration
	StationMinTTL time.Duration

	IngestQueue int

	SubBuffer      int
	SubBatchWindow time.Duration
	SubBatchMax    int

	AdminToken string

	RateLimitEnabled bool
	RateLimitQPS     int
}

// Load：读取环境变量并校验枚举取值
func Load() (Config, error) {
	c := Config{
		Addr:             utils.EnvString("ADDR", ":8080"),
		APIBase:          utils.EnvString("API_BASE", "/api"),
		TLSEnable:        utils.EnvString("TLS_ENABLE", "false") == "true",
		TLSCertPath:      utils.EnvString("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt")),
		TLSKeyPath:       utils.EnvString("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key")),
		StoreBackend:     utils.EnvString("STORE_BACKEND", BackendRedis),
		ProvidersSource:  utils.EnvString("PROVIDERS_SOURCE", SourceFile),
		ProvidersFile:    utils.EnvString("PROVIDERS_FILE", filepath.Join("data", "providers.yaml")),
		ReloadInterval:   utils.EnvDuration("PROVIDERS_RELOAD_MS", time.Minute),
		LeaderMode:       utils.EnvString("LEADER_MODE", LeaderStatic),
		LeaderStatic:     utils.EnvString("LEADER", "true") == "true",
		LeaderKey:        utils.EnvString("LEADER_KEY", "gbfs:leader"),
		LeaderLeaseTTL:   utils.EnvDuration("LEADER_LEASE_MS", 15*time.Second),
		VehicleMinTTL:    time.Duration(utils.EnvInt("VEHICLE_TTL_MIN", 30)) * time.Second,
		VehicleMaxTTL:    time.Duration(utils.EnvInt("VEHICLE_TTL_MAX", 300)) * time.Second,
		StationMinTTL:    time.Duration(utils.EnvInt("STATION_TTL_MIN", 300)) * time.Second,
		IngestQueue:      utils.EnvInt("INGEST_QUEUE", 16),
		SubBuffer:        utils.EnvInt("SUB_BUFFER", 10000),
		SubBatchWindow:   utils.EnvDuration("SUB_BATCH_WINDOW_MS", 50*time.Millisecond),
		SubBatchMax:      utils.EnvInt("SUB_BATCH_MAX", 100),
		AdminToken:       utils.EnvString("ADMIN_TOKEN", ""),
		RateLimitEnabled: utils.EnvString("RATE_LIMIT_ENABLED", "false") == "true",
		RateLimitQPS:     utils.EnvInt("RATE_LIMIT_QPS", 20),
	}
	switch c.StoreBackend {
	case BackendRedis, BackendMemory:
	default:
		return c, fmt.Errorf("STORE_BACKEND: unsupported value %q", c.StoreBackend)
	}
	switch c.ProvidersSource {
	case SourceFile, SourcePostgres:
	default:
		return c, fmt.Errorf("PROVIDERS_SOURCE: unsupported value %q", c.ProvidersSource)
	}
	switch c.LeaderMode {
	case LeaderStatic, LeaderRedis:
	default:
		return c, fmt.Errorf("LEADER_MODE: unsupported value %q", c.LeaderMode)
	}
	if c.LeaderMode == LeaderRedis && c.StoreBackend != BackendRedis {
		return c, fmt.Errorf("LEADER_MODE=redis requires STORE_BACKEND=redis")
	}
	return c, nil
}
