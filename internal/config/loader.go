package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(homeDir(), ".clcl", "config.json")
}

// DataDir returns the clcl data directory.
func DataDir() string {
	dir := filepath.Join(homeDir(), ".clcl")
	os.MkdirAll(dir, 0o755)
	return dir
}

// StateDir returns the directory holding per-channel cursor files.
func StateDir() string {
	dir := filepath.Join(DataDir(), "state")
	os.MkdirAll(dir, 0o755)
	return dir
}

// Load reads configuration from the default path and applies environment
// overrides.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads configuration from a specific path, falling back to
// defaults when the file does not exist. Environment overrides are applied
// after the file so CLCL_* variables always win. No component reads the
// environment after this point.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	for _, field := range CheckUnknownFields(raw) {
		slog.Warn("Unknown config field", "field", field, "path", path)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("apply config: %w", err)
	}

	// Backfill zero values so a sparse config file still gets defaults.
	if cfg.Channels.Email.IMAPHost == "" {
		cfg.Channels.Email.IMAPHost = "imap.gmail.com:993"
	}
	if cfg.Channels.Email.Mailbox == "" {
		cfg.Channels.Email.Mailbox = "INBOX"
	}
	if cfg.Channels.NativeMessage.DBPath == "" {
		cfg.Channels.NativeMessage.DBPath = "~/Library/Messages/chat.db"
	}
	if cfg.Channels.NativeMessage.PollIntervalS == 0 {
		cfg.Channels.NativeMessage.PollIntervalS = 5
	}
	if cfg.Inbox.Dir == "" {
		cfg.Inbox.Dir = "~/.clcl/inbox"
	}
	if cfg.Launch.TimeoutS == 0 {
		cfg.Launch.TimeoutS = 30
	}

	applyEnv(cfg)
	return cfg, cfg.Validate()
}

// applyEnv overrides config values from the recognized CLCL_* variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CLCL_EMAIL"); v != "" {
		cfg.Channels.Email.Address = v
	}
	if v := os.Getenv("CLCL_APP_PASSWORD"); v != "" {
		cfg.Channels.Email.AppPassword = v
	}
	if v := os.Getenv("CLCL_IMAP_HOST"); v != "" {
		cfg.Channels.Email.IMAPHost = v
	}
	if v := os.Getenv("CLCL_INBOX_DIR"); v != "" {
		cfg.Inbox.Dir = v
	}
	if v := os.Getenv("CLCL_CHANNELS"); v != "" {
		var names []string
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		cfg.Channels.Enabled = names
	}
}

// Save writes configuration to the default path.
func Save(cfg *Config) error {
	return SaveTo(cfg, ConfigPath())
}

// SaveTo writes configuration to a specific path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(out, '\n'), 0o600)
}

// Upgrade reads the existing config file, deep-merges it on top of
// DefaultConfig (local values win), and saves the result.
// New fields from defaults are added; existing user values are preserved.
func Upgrade() (*Config, error) {
	path := ConfigPath()

	defaultData, _ := json.Marshal(DefaultConfig())
	var defaultMap map[string]any
	json.Unmarshal(defaultData, &defaultMap)

	localData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var localMap map[string]any
	if err := json.Unmarshal(localData, &localMap); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	merged := deepMerge(defaultMap, localMap)

	cfg := DefaultConfig()
	reData, _ := json.Marshal(merged)
	if err := json.Unmarshal(reData, cfg); err != nil {
		return nil, fmt.Errorf("apply merged config: %w", err)
	}

	if err := SaveTo(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// deepMerge recursively merges src into dst. Values from src take priority.
func deepMerge(dst, src map[string]any) map[string]any {
	result := make(map[string]any, len(dst))
	for k, v := range dst {
		result[k] = v
	}
	for k, srcVal := range src {
		dstVal, exists := result[k]
		if !exists {
			result[k] = srcVal
			continue
		}
		dstMap, dstOK := dstVal.(map[string]any)
		srcMap, srcOK := srcVal.(map[string]any)
		if dstOK && srcOK {
			result[k] = deepMerge(dstMap, srcMap)
		} else {
			result[k] = srcVal
		}
	}
	return result
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp"
	}
	return home
}
