package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
gateway:
  base_url: wss://gateway.example.test
  reconnect_threshold: 4
  worker_pool_size: 8
  handshake_timeout_secs: 15
timer:
  max_drain_iterations: 500
  max_drain_millis: 5
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadDecodesYAML(t *testing.T) {
	path := writeTemp(t, sampleYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw := cfg.GatewayConfig()
	if gw.BaseURL != "wss://gateway.example.test" {
		t.Fatalf("unexpected base url: %q", gw.BaseURL)
	}
	if gw.ReconnectThreshold != 4 {
		t.Fatalf("unexpected reconnect threshold: %d", gw.ReconnectThreshold)
	}
	if gw.WorkerPoolSize != 8 {
		t.Fatalf("unexpected worker pool size: %d", gw.WorkerPoolSize)
	}
	if gw.HandshakeTimeout != 15*time.Second {
		t.Fatalf("unexpected handshake timeout: %v", gw.HandshakeTimeout)
	}

	tc := cfg.TimerConfig()
	if tc.MaxDrainIterations != 500 {
		t.Fatalf("unexpected max drain iterations: %d", tc.MaxDrainIterations)
	}
	if tc.MaxDrainDuration != 5*time.Millisecond {
		t.Fatalf("unexpected max drain duration: %v", tc.MaxDrainDuration)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeTemp(t, sampleYAML)

	t.Setenv("GATEWAY_BASE_URL", "wss://override.example.test")
	t.Setenv("GATEWAY_RECONNECT_THRESHOLD", "9")
	t.Setenv("GATEWAY_WORKER_POOL_SIZE", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw := cfg.GatewayConfig()
	if gw.BaseURL != "wss://override.example.test" {
		t.Fatalf("expected env override for base url, got %q", gw.BaseURL)
	}
	if gw.ReconnectThreshold != 9 {
		t.Fatalf("expected env override for reconnect threshold, got %d", gw.ReconnectThreshold)
	}
	if gw.WorkerPoolSize != 3 {
		t.Fatalf("expected env override for worker pool size, got %d", gw.WorkerPoolSize)
	}
}

func TestEnvOverrideIgnoresUnparseableInt(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	t.Setenv("GATEWAY_RECONNECT_THRESHOLD", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.GatewayConfig().ReconnectThreshold; got != 4 {
		t.Fatalf("expected file value retained when env override is unparseable, got %d", got)
	}
}
