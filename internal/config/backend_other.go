//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "caseflow-data"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "caseflow")
}

func secretHint(account string) string {
	return fmt.Sprintf(" or %s (caseflow.%s)", secretsFilePath(), account)
}

// jsonFileBackend keeps settings as a flat JSON object keyed by dotted names,
// e.g. {"orchestrator.strict_transitions": true, "server.port": 4100}.
type jsonFileBackend struct {
	path   string
	values map[string]any
}

func newPlatformBackend() Backend {
	return newFileBackend(configFilePath())
}

func newFileBackend(path string) *jsonFileBackend {
	b := &jsonFileBackend{path: path, values: map[string]any{}}
	b.read()
	return b
}

// configFilePath honours CASEFLOW_CONFIG, then XDG_CONFIG_HOME, then ~/.config.
func configFilePath() string {
	if p := os.Getenv("CASEFLOW_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "caseflow.json")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "caseflow", "config.json")
}

func (b *jsonFileBackend) read() {
	raw, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return
	}
	if err == nil {
		err = json.Unmarshal(raw, &b.values)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] ignoring config file %s: %v\n", b.path, err)
	}
}

func (b *jsonFileBackend) write() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	raw, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(b.path, raw, 0o600)
}

func (b *jsonFileBackend) set(key string, v any) error {
	b.values[key] = v
	return b.write()
}

func (b *jsonFileBackend) GetString(key string) (string, bool, error) {
	switch v := b.values[key].(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	default:
		return fmt.Sprint(v), true, nil
	}
}

func (b *jsonFileBackend) GetInt(key string) (int, bool, error) {
	switch v := b.values[key].(type) {
	case nil:
		return 0, false, nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt || v > math.MaxInt {
			return 0, true, fmt.Errorf("%s: %v is not an integer", key, v)
		}
		return int(v), true, nil
	case string:
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("%s: unexpected %T", key, v)
	}
}

func (b *jsonFileBackend) GetBool(key string) (bool, bool, error) {
	switch v := b.values[key].(type) {
	case nil:
		return false, false, nil
	case bool:
		return v, true, nil
	case string:
		bv, err := strconv.ParseBool(v)
		if err != nil {
			return false, true, fmt.Errorf("%s: %w", key, err)
		}
		return bv, true, nil
	default:
		return false, true, fmt.Errorf("%s: unexpected %T", key, v)
	}
}

func (b *jsonFileBackend) SetString(key, val string) error { return b.set(key, val) }
func (b *jsonFileBackend) SetInt(key string, val int) error { return b.set(key, val) }
func (b *jsonFileBackend) SetBool(key string, val bool) error { return b.set(key, val) }

func (b *jsonFileBackend) Delete(key string) error {
	delete(b.values, key)
	return b.write()
}
