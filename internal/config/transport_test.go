package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_StdioTransportSkipsHTTPValidation(t *testing.T) {
	clearConfigEnvVars(t)
	t.Setenv("MCP_TRANSPORT", "stdio")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error for stdio transport with no BaseURL/OAuth vars: %v", err)
	}
	if cfg.Transport != "stdio" {
		t.Errorf("Transport = %q, want stdio", cfg.Transport)
	}
}

func TestValidateTransport_UnknownTransportRejected(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Transport = "carrier-pigeon"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an unknown transport")
	}
}

func TestValidateTransport_TCPRequiresAddr(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Transport = "tcp"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error when tcp transport has no TCPAddr")
	}

	cfg.TCPAddr = ":9443"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error once TCPAddr is set: %v", err)
	}
}

func TestValidateTransport_TLSRequiresCertAndKey(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Transport = "tls"
	cfg.TCPAddr = ":9443"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error when tls transport has no cert/key files")
	}

	cfg.TLSCertFile = "server.crt"
	cfg.TLSKeyFile = "server.key"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error once cert/key are set: %v", err)
	}
}

func TestValidateTransport_UnixRequiresSocketPath(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Transport = "unix"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error when unix transport has no socket path")
	}

	cfg.UnixSocketPath = "/tmp/mcp.sock"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error once UnixSocketPath is set: %v", err)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.yaml")
	contents := `
transport: tcp
tcp_addr: ":9000"
shutdown_drain_window: 45s
default_method_timeout: 10s
method_timeouts:
  tools/call: 90s
  resources/read: 5s
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write overlay file: %v", err)
	}

	cfg := &Config{Transport: "stdio", MethodTimeouts: map[string]time.Duration{}}
	if err := LoadYAMLOverlay(path, cfg); err != nil {
		t.Fatalf("LoadYAMLOverlay: %v", err)
	}

	if cfg.Transport != "tcp" {
		t.Errorf("Transport = %q, want tcp", cfg.Transport)
	}
	if cfg.TCPAddr != ":9000" {
		t.Errorf("TCPAddr = %q, want :9000", cfg.TCPAddr)
	}
	if cfg.ShutdownDrainWindow != 45*time.Second {
		t.Errorf("ShutdownDrainWindow = %v, want 45s", cfg.ShutdownDrainWindow)
	}
	if cfg.MethodTimeouts["tools/call"] != 90*time.Second {
		t.Errorf("MethodTimeouts[tools/call] = %v, want 90s", cfg.MethodTimeouts["tools/call"])
	}
	if cfg.MethodTimeouts["resources/read"] != 5*time.Second {
		t.Errorf("MethodTimeouts[resources/read] = %v, want 5s", cfg.MethodTimeouts["resources/read"])
	}
}

func TestLoadYAMLOverlay_MissingFile(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	if err := LoadYAMLOverlay("/nonexistent/mcp.yaml", cfg); err == nil {
		t.Fatal("expected an error for a missing overlay file")
	}
}
