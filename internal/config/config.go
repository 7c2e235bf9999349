// Package config provides configuration management for overchat. It handles
// loading and parsing the YAML configuration file and provides structured
// access to provider credentials, the callback port, storage locations, and
// logging settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default locations under the user's home directory.
const (
	defaultDirName        = ".overchat"
	defaultCredentialFile = "credentials.json"
	defaultChatLogDir     = "chatlogs"
	defaultLogDir         = "logs"
)

// DefaultCallbackPort is the loopback port OAuth redirects return to. It must
// agree with the redirect URIs registered with the providers.
const DefaultCallbackPort = 52780

// ProviderConfig holds one identity provider's client registration. Leaving
// the credentials blank puts that provider in guest mode.
type ProviderConfig struct {
	// ClientID is the OAuth application client id.
	ClientID string `yaml:"client-id" json:"client-id"`

	// ClientSecret is the OAuth application secret, required only by
	// providers whose flow exchanges a code.
	ClientSecret string `yaml:"client-secret,omitempty" json:"client-secret,omitempty"`

	// RedirectURI is the callback address registered with the provider.
	RedirectURI string `yaml:"redirect-uri" json:"redirect-uri"`

	// Scopes are the OAuth scopes requested at sign-in, in order.
	Scopes []string `yaml:"scopes" json:"scopes"`
}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// CredentialFile is the path of the JSON credential record.
	CredentialFile string `yaml:"credential-file" json:"credential-file"`

	// ChatLogDir is where chat transcripts are written.
	ChatLogDir string `yaml:"chat-log-dir" json:"chat-log-dir"`

	// CallbackPort is the local port the OAuth callback server listens on.
	CallbackPort int `yaml:"callback-port" json:"callback-port"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url,omitempty" json:"proxy-url,omitempty"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile redirects logs from stdout to rotated files under LogDir.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is where rotated log files are written.
	LogDir string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`

	// Twitch and Kick are the provider registrations.
	Twitch ProviderConfig `yaml:"twitch" json:"twitch"`
	Kick   ProviderConfig `yaml:"kick" json:"kick"`
}

// Load reads and parses the configuration file, then fills defaults for
// everything left unset. A missing file yields the pure-default config, which
// signs in as guest everywhere.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configFile)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills unset fields with their defaults.
func (c *Config) applyDefaults() {
	base := defaultBaseDir()
	if c.CredentialFile == "" {
		c.CredentialFile = filepath.Join(base, defaultCredentialFile)
	}
	if c.ChatLogDir == "" {
		c.ChatLogDir = filepath.Join(base, defaultChatLogDir)
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(base, defaultLogDir)
	}
	if c.CallbackPort == 0 {
		c.CallbackPort = DefaultCallbackPort
	}
	if c.Twitch.RedirectURI == "" {
		c.Twitch.RedirectURI = fmt.Sprintf("http://localhost:%d/auth/twitch", c.CallbackPort)
	}
	if len(c.Twitch.Scopes) == 0 {
		c.Twitch.Scopes = []string{"chat:read", "chat:edit"}
	}
	if c.Kick.RedirectURI == "" {
		c.Kick.RedirectURI = fmt.Sprintf("http://localhost:%d/auth/kick", c.CallbackPort)
	}
	if len(c.Kick.Scopes) == 0 {
		c.Kick.Scopes = []string{"user:read", "channel:read", "chat:write"}
	}
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}
