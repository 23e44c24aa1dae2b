//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caseflow", "config.json")

	b := newFileBackend(path)
	if err := b.SetInt("server.port", 4200); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	if err := b.SetString("llm.model", "qwen2.5"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	reloaded := newFileBackend(path)
	port, ok, err := reloaded.GetInt("server.port")
	if err != nil || !ok || port != 4200 {
		t.Fatalf("GetInt = %d, %v, %v", port, ok, err)
	}
	model, ok, _ := reloaded.GetString("llm.model")
	if !ok || model != "qwen2.5" {
		t.Fatalf("GetString = %q, %v", model, ok)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileBackend_RejectsFractionalInt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server.port": 4.5}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := newFileBackend(path).GetInt("server.port"); err == nil {
		t.Fatal("expected an error for a fractional port")
	}
}

func TestFileBackend_Bool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server.mcp_enabled": "1", "orchestrator.strict_transitions": 3}`), 0o600); err != nil {
		t.Fatal(err)
	}

	b := newFileBackend(path)
	v, ok, err := b.GetBool("server.mcp_enabled")
	if err != nil || !ok || !v {
		t.Fatalf("GetBool(string) = %v, %v, %v", v, ok, err)
	}
	if _, _, err := b.GetBool("orchestrator.strict_transitions"); err == nil {
		t.Error("expected an error for a numeric bool")
	}

	if err := b.SetBool("orchestrator.strict_transitions", true); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	v, ok, err = newFileBackend(path).GetBool("orchestrator.strict_transitions")
	if err != nil || !ok || !v {
		t.Fatalf("GetBool after reload = %v, %v, %v", v, ok, err)
	}
}

func TestConfigFilePath_Override(t *testing.T) {
	t.Setenv("CASEFLOW_CONFIG", "/etc/caseflow/config.json")
	if got := configFilePath(); got != "/etc/caseflow/config.json" {
		t.Errorf("configFilePath() = %q", got)
	}

	t.Setenv("CASEFLOW_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := configFilePath(); got != filepath.Join("/xdg", "caseflow", "config.json") {
		t.Errorf("configFilePath() = %q", got)
	}
}

func TestSecretsFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, "caseflow"), 0o700); err != nil {
		t.Fatal(err)
	}
	secrets := `{"caseflow": {"api_token": " from-file \n"}}`
	if err := os.WriteFile(filepath.Join(dir, "caseflow", "secrets.json"), []byte(secrets), 0o600); err != nil {
		t.Fatal(err)
	}

	v, err := keychainReader{}.Get("caseflow", "api_token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "from-file" {
		t.Errorf("got %q, want from-file", v)
	}
}
