// Package config holds the long-lived process configuration for Mercury's
// two entrypoints (home server, connect client), following the teacher's
// Config/DefaultConfig/Validate shape (node/config.go).
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir mirrors the teacher's per-OS home-relative default
// (node/config.go's DefaultDataDir), renamed to this project's dotdir.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".mercury"
	}
	return filepath.Join(home, ".mercury")
}

// HomeConfig configures one homeserver process.
type HomeConfig struct {
	DataDir       string `json:"data_dir"`
	BindAddr      string `json:"bind_addr"`
	LogLevel      string `json:"log_level"`
	AllowDegraded bool   `json:"allow_degraded"`
	RemoteRepo    string `json:"remote_repo"` // osg peer address; empty disables Base/remote sync
}

// DefaultHomeConfig returns the out-of-the-box homeserver configuration.
func DefaultHomeConfig() HomeConfig {
	return HomeConfig{
		DataDir:       DefaultDataDir(),
		BindAddr:      "0.0.0.0:5555",
		LogLevel:      "info",
		AllowDegraded: false,
	}
}

// ValidateHomeConfig mirrors node/config.go's ValidateConfig shape.
func ValidateHomeConfig(cfg HomeConfig) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	if cfg.RemoteRepo != "" {
		if err := validateAddr(cfg.RemoteRepo); err != nil {
			return fmt.Errorf("invalid remote_repo: %w", err)
		}
	}
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// VaultPath returns where this home's KeyVault is persisted.
func (c HomeConfig) VaultPath() string { return filepath.Join(c.DataDir, "vault.mp") }

// LocalRepoPath returns where this home's Local profile store lives.
func (c HomeConfig) LocalRepoPath() string { return filepath.Join(c.DataDir, "profiles.bolt") }

// ClientConfig configures one ConnectClient-driven process (a DApp host).
type ClientConfig struct {
	DataDir       string   `json:"data_dir"`
	LogLevel      string   `json:"log_level"`
	AllowDegraded bool     `json:"allow_degraded"`
	HomeAddrHints []string `json:"home_addr_hints"`
}

// DefaultClientConfig returns the out-of-the-box client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
	}
}

// ValidateClientConfig mirrors node/config.go's ValidateConfig shape.
func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	for _, addr := range cfg.HomeAddrHints {
		if err := validateAddr(addr); err != nil {
			return fmt.Errorf("invalid home addr hint %q: %w", addr, err)
		}
	}
	return nil
}

// VaultPath returns where this client's KeyVault is persisted.
func (c ClientConfig) VaultPath() string { return filepath.Join(c.DataDir, "vault.mp") }

// LocalRepoPath returns where this client's Local profile store lives.
func (c ClientConfig) LocalRepoPath() string { return filepath.Join(c.DataDir, "profiles.bolt") }

// NormalizeAddrHints dedupes and splits comma-joined address lists the way
// node/config.go's NormalizePeers does for bootstrap peers.
func NormalizeAddrHints(raw ...string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, token := range raw {
		for _, addr := range strings.Split(token, ",") {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}

func validateLogLevel(level string) error {
	if _, ok := allowedLogLevels[strings.ToLower(strings.TrimSpace(level))]; !ok {
		return fmt.Errorf("invalid log_level %q", level)
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}
