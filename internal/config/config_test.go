package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Identity.SaveDir != "./data" {
		t.Errorf("Identity.SaveDir = %s, want ./data", cfg.Identity.SaveDir)
	}
	if cfg.Identity.WordLen != 8 {
		t.Errorf("Identity.WordLen = %d, want 8", cfg.Identity.WordLen)
	}
	if cfg.Suite.StreamAlgo != "chacha20" {
		t.Errorf("Suite.StreamAlgo = %s, want chacha20", cfg.Suite.StreamAlgo)
	}
	if cfg.Gateway.Timeout <= 0 {
		t.Errorf("Gateway.Timeout = %v, want positive", cfg.Gateway.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() config failed validation: %v", err)
	}
}

func TestParse_ValidConfig(t *testing.T) {
	yamlConfig := `
identity:
  save_dir: "./keys"
  password: "correct horse battery staple"
  word_len: 8
  history_max: 5

suite:
  stream_algo: "chacha20"
  hash_algo: "sha256"
  hash_size: 32
  public_key_algo: "rsa-256"
  public_key_size: 8

bank:
  path: "./keys/bank.db"

gateway:
  group_id: "friends"
  node_name: "alice"
  timeout: 45s
  safe_timeout: 30s
  error_timeout: 15s
  stream_timeout: 10m

logging:
  level: "debug"
  format: "json"
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Identity.SaveDir != "./keys" {
		t.Errorf("Identity.SaveDir = %s, want ./keys", cfg.Identity.SaveDir)
	}
	if cfg.Gateway.GroupID != "friends" {
		t.Errorf("Gateway.GroupID = %s, want friends", cfg.Gateway.GroupID)
	}
	if cfg.Gateway.Timeout.String() != "45s" {
		t.Errorf("Gateway.Timeout = %v, want 45s", cfg.Gateway.Timeout)
	}
}

func TestParse_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "group id too long",
			yaml: `
gateway:
  group_id: "` + strings.Repeat("x", 40) + `"
  node_name: "a"
  timeout: 30s
  safe_timeout: 22s
  error_timeout: 10s
  stream_timeout: 5m
`,
			wantErr: "group_id exceeds",
		},
		{
			name: "node name too long",
			yaml: `
gateway:
  group_id: "g"
  node_name: "` + strings.Repeat("y", 40) + `"
  timeout: 30s
  safe_timeout: 22s
  error_timeout: 10s
  stream_timeout: 5m
`,
			wantErr: "node_name exceeds",
		},
		{
			name: "odd word length",
			yaml: `
identity:
  word_len: 7
`,
			wantErr: "word_len",
		},
		{
			name: "history max out of range",
			yaml: `
identity:
  history_max: 21
`,
			wantErr: "history_max",
		},
		{
			name: "bad log level",
			yaml: `
logging:
  level: "verbose"
  format: "text"
`,
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("Parse() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
gateway:
  group_id: "g"
  node_name: "n"
  timeout: 30s
  safe_timeout: 22s
  error_timeout: 10s
  stream_timeout: 5m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.GroupID != "g" {
		t.Errorf("Gateway.GroupID = %s, want g", cfg.Gateway.GroupID)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CRYPTOGATEWAY_TEST_PASSWORD", "hunter2")

	yamlConfig := `
identity:
  password: "${CRYPTOGATEWAY_TEST_PASSWORD}"
  word_len: 8
gateway:
  group_id: "g"
  node_name: "n"
  timeout: 30s
  safe_timeout: 22s
  error_timeout: 10s
  stream_timeout: 5m
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Identity.Password != "hunter2" {
		t.Errorf("Identity.Password = %s, want hunter2", cfg.Identity.Password)
	}
}

func TestString_RedactsPassword(t *testing.T) {
	cfg := Default()
	cfg.Identity.Password = "super-secret"

	out := cfg.String()
	if strings.Contains(out, "super-secret") {
		t.Errorf("String() leaked password: %s", out)
	}
	if !strings.Contains(out, "REDACTED") {
		t.Errorf("String() did not redact password: %s", out)
	}
}
