package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"ADDR", "STORE_BACKEND", "PROVIDERS_SOURCE", "LEADER_MODE", "SUB_BUFFER", "SUB_BATCH_WINDOW_MS", "VEHICLE_TTL_MAX"} {
		t.Setenv(k, "")
	}
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Addr != ":8080" || c.StoreBackend != BackendRedis || c.LeaderMode != LeaderStatic {
		t.Fatalf("defaults: %+v", c)
	}
	if c.SubBuffer != 10000 || c.SubBatchWindow != 50*time.Millisecond || c.SubBatchMax != 100 {
		t.Fatalf("subscription defaults: %+v", c)
	}
	if c.VehicleMinTTL != 30*time.Second || c.VehicleMaxTTL != 300*time.Second || c.StationMinTTL != 300*time.Second {
		t.Fatalf("ttl defaults: %+v", c)
	}
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	cases := map[string][2]string{
		"backend": {"STORE_BACKEND", "etcd"},
		"source":  {"PROVIDERS_SOURCE", "consul"},
		"leader":  {"LEADER_MODE", "raft"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%s accepted", kv[0], kv[1])
			}
		})
	}
}

func TestRedisLeaderNeedsRedisBackend(t *testing.T) {
	t.Setenv("LEADER_MODE", LeaderRedis)
	t.Setenv("STORE_BACKEND", BackendMemory)
	if _, err := Load(); err == nil {
		t.Fatalf("redis leader with memory backend accepted")
	}
}
