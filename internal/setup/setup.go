// Package setup registers the MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerName is the key of the server entry in the client configuration.
const ServerName = "patient-similarity"

// BinaryName is the MCP server executable looked up when no path is given.
const BinaryName = "mcp-server"

// DesktopConfig represents the desktop client configuration file structure.
type DesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	// other top-level keys are preserved on save
	Extra map[string]json.RawMessage `json:"-"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for the setup process.
type Options struct {
	ConfigPath    string // Client config file; empty uses the platform default
	BinaryPath    string // Path to the server binary
	DataDir       string // Data directory passed as PSIM_DATA_DIR
	CBioPortalURL string // Mutation source passed as PSIM_CBIOPORTAL_URL
}

// DesktopConfigPath returns the platform path of the desktop client's config file.
func DesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadDesktopConfig loads the client configuration. A missing file yields an empty config.
func LoadDesktopConfig(configPath string) (*DesktopConfig, error) {
	config := &DesktopConfig{
		MCPServers: make(map[string]MCPServerConfig),
		Extra:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &config.Extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := config.Extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &config.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(config.Extra, "mcpServers")
	}
	if config.MCPServers == nil {
		config.MCPServers = make(map[string]MCPServerConfig)
	}

	return config, nil
}

// SaveDesktopConfig writes the configuration, creating its directory.
func SaveDesktopConfig(configPath string, config *DesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(config.Extra)+1)
	for k, v := range config.Extra {
		out[k] = v
	}
	out["mcpServers"] = config.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Configure adds or updates the server entry and returns the config path written.
func Configure(opts Options) (string, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		var err error
		if configPath, err = DesktopConfigPath(); err != nil {
			return "", err
		}
	}

	config, err := LoadDesktopConfig(configPath)
	if err != nil {
		return "", err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		if binaryPath, err = findBinary(); err != nil {
			return "", fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := MCPServerConfig{
		Command: binaryPath,
		Env:     make(map[string]string),
	}
	if opts.DataDir != "" {
		entry.Env["PSIM_DATA_DIR"] = opts.DataDir
	}
	if opts.CBioPortalURL != "" {
		entry.Env["PSIM_CBIOPORTAL_URL"] = opts.CBioPortalURL
	}
	config.MCPServers[ServerName] = entry

	if err := SaveDesktopConfig(configPath, config); err != nil {
		return "", err
	}
	return configPath, nil
}

// findBinary attempts to find the server binary in common locations.
func findBinary() (string, error) {
	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	locations := []string{
		"./" + BinaryName,
		"./build/" + BinaryName,
		filepath.Join(home, ".local", "bin", BinaryName),
		"/usr/local/bin/" + BinaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}

	return "", fmt.Errorf("binary %q not found in common locations", BinaryName)
}

// Status represents the current setup status.
type Status struct {
	ConfigPath   string
	Configured   bool
	ServerPath   string
	BinaryExists bool
	DataDir      string
	CohortExists bool
	Issues       []string
}

// GetStatus inspects the client configuration and the server's data directory.
// defaultDataDir is reported when the entry does not set PSIM_DATA_DIR.
func GetStatus(configPath, defaultDataDir string) (*Status, error) {
	if configPath == "" {
		var err error
		if configPath, err = DesktopConfigPath(); err != nil {
			return nil, err
		}
	}

	status := &Status{ConfigPath: configPath, DataDir: defaultDataDir, Issues: []string{}}

	config, err := LoadDesktopConfig(configPath)
	if err != nil {
		return nil, err
	}

	if entry, ok := config.MCPServers[ServerName]; ok {
		status.Configured = true
		status.ServerPath = entry.Command
		if _, err := os.Stat(entry.Command); err == nil {
			status.BinaryExists = true
		} else {
			status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found at: %s", entry.Command))
		}
		if dir := entry.Env["PSIM_DATA_DIR"]; dir != "" {
			status.DataDir = dir
		}
	} else {
		status.Issues = append(status.Issues, "Server is not configured in the desktop client")
	}

	if status.DataDir != "" {
		if _, err := os.Stat(filepath.Join(status.DataDir, "cohort.db")); err == nil {
			status.CohortExists = true
		}
	}

	return status, nil
}
