package config

import "path/filepath"

// Config is the root configuration for clcl.
type Config struct {
	Channels ChannelsConfig `json:"channels"`
	Inbox    InboxConfig    `json:"inbox"`
	Launch   LaunchConfig   `json:"launch"`
}

// ChannelsConfig holds all channel configurations plus the selection list.
type ChannelsConfig struct {
	// Enabled restricts which channels run. Empty means every channel
	// available on this platform.
	Enabled       []string            `json:"enabled"`
	Email         EmailConfig         `json:"email"`
	Webchat       WebchatConfig       `json:"webchat"`
	NativeMessage NativeMessageConfig `json:"nativeMessage"`
}

// EmailConfig holds the IMAP IDLE channel settings.
type EmailConfig struct {
	Address     string   `json:"address"`
	AppPassword string   `json:"appPassword"`
	IMAPHost    string   `json:"imapHost"` // host:port
	Mailbox     string   `json:"mailbox"`
	AllowFrom   []string `json:"allowFrom"`
}

// WebchatConfig holds the Discord-backed webchat channel settings.
type WebchatConfig struct {
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
}

// NativeMessageConfig holds the macOS Messages channel settings.
type NativeMessageConfig struct {
	DBPath        string   `json:"dbPath"`
	PollIntervalS int      `json:"pollIntervalSeconds"`
	AllowFrom     []string `json:"allowFrom"`
}

// InboxConfig holds the task artifact destination.
type InboxConfig struct {
	Dir string `json:"dir"`
}

// LaunchConfig holds the post-dispatch launch trigger settings.
// Command receives the artifact path as its last argument; empty means
// log-only (no process is spawned).
type LaunchConfig struct {
	Command  string `json:"command"`
	TimeoutS int    `json:"timeoutSeconds"`
}

// InboxDir returns the expanded artifact destination directory.
func (c *Config) InboxDir() string {
	return expandHome(c.Inbox.Dir)
}

// NativeDBPath returns the expanded Messages store path.
func (c *Config) NativeDBPath() string {
	return expandHome(c.Channels.NativeMessage.DBPath)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Email: EmailConfig{
				IMAPHost: "imap.gmail.com:993",
				Mailbox:  "INBOX",
			},
			NativeMessage: NativeMessageConfig{
				DBPath:        "~/Library/Messages/chat.db",
				PollIntervalS: 5,
			},
		},
		Inbox: InboxConfig{
			Dir: "~/.clcl/inbox",
		},
		Launch: LaunchConfig{
			TimeoutS: 30,
		},
	}
}

func expandHome(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
