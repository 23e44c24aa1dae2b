//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.caseflow.app"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "caseflow-data"
	}
	return filepath.Join(home, "Library", "Application Support", "caseflow")
}

func secretHint(account string) string {
	return " or macOS Keychain (service: caseflow, account: " + account + ")"
}

// defaultsBackend stores settings in the user defaults domain via the
// `defaults` tool.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() Backend {
	return defaultsBackend{domain: defaultsDomain}
}

func (b defaultsBackend) run(args ...string) (string, error) {
	out, err := exec.Command("defaults", args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (b defaultsBackend) GetString(key string) (string, bool, error) {
	s, err := b.run("read", b.domain, key)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("defaults read %s: %w: %s", key, err, s)
	}
	return s, true, nil
}

func (b defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return i, true, nil
}

// GetBool accepts both `defaults` spellings: 1/0 from -bool writes and
// true/false from -string writes.
func (b defaultsBackend) GetBool(key string) (bool, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return false, ok, err
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, true, fmt.Errorf("%s: %w", key, err)
	}
	return v, true, nil
}

func (b defaultsBackend) SetString(key, val string) error {
	_, err := b.run("write", b.domain, key, "-string", val)
	return err
}

func (b defaultsBackend) SetInt(key string, val int) error {
	_, err := b.run("write", b.domain, key, "-int", strconv.Itoa(val))
	return err
}

func (b defaultsBackend) SetBool(key string, val bool) error {
	_, err := b.run("write", b.domain, key, "-bool", strconv.FormatBool(val))
	return err
}

func (b defaultsBackend) Delete(key string) error {
	_, err := b.run("delete", b.domain, key)
	return err
}
