package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Config holds CLI configuration
type Config struct {
	ServerURL    string
	HostID       string
	PlayerID     string
	IdentityFile string
	Output       string
	Timeout      time.Duration
}

// identity is what the CLI remembers between invocations so a host can
// start the session it created and a player keeps guessing as themselves
type identity struct {
	HostID   string `json:"host_id,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL:    getEnvOrDefault("QWZ_SERVER", "http://localhost:8080"),
		HostID:       os.Getenv("QWZ_HOST_ID"),
		PlayerID:     os.Getenv("QWZ_PLAYER_ID"),
		IdentityFile: getEnvOrDefault("QWZ_IDENTITY_FILE", defaultIdentityFile()),
		Output:       "text",
		Timeout:      10 * time.Second,
	}
}

// LoadIdentity fills in IDs not set via flag or env from the identity file
func (c *Config) LoadIdentity() error {
	data, err := os.ReadFile(c.IdentityFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No identity yet is fine
		}
		return err
	}

	var id identity
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	if c.HostID == "" {
		c.HostID = id.HostID
	}
	if c.PlayerID == "" {
		c.PlayerID = id.PlayerID
	}
	return nil
}

// SaveIdentity writes the current IDs to the identity file
func (c *Config) SaveIdentity() error {
	dir := filepath.Dir(c.IdentityFile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.Marshal(identity{HostID: c.HostID, PlayerID: c.PlayerID})
	if err != nil {
		return err
	}
	return os.WriteFile(c.IdentityFile, data, 0600)
}

// EnsureHostID returns the host ID, generating and saving one if needed
func (c *Config) EnsureHostID() (string, error) {
	if c.HostID == "" {
		c.HostID = uuid.NewString()
		if err := c.SaveIdentity(); err != nil {
			return "", err
		}
	}
	return c.HostID, nil
}

// EnsurePlayerID returns the player ID, generating and saving one if needed
func (c *Config) EnsurePlayerID() (string, error) {
	if c.PlayerID == "" {
		c.PlayerID = uuid.NewString()
		if err := c.SaveIdentity(); err != nil {
			return "", err
		}
	}
	return c.PlayerID, nil
}

func defaultIdentityFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".qwz/identity.json"
	}
	return filepath.Join(home, ".qwz", "identity.json")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
