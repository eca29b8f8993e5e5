package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/paularlott/cli"
)

// Config holds the application configuration
type Config struct {
	DataDir       string
	ListenAddr    string
	APIAuthToken  string // bearer token for the HTTP API ("" disables auth)
	MCPAuthToken  string // bearer token for the MCP endpoint ("" disables auth)
	StaticFile    string // path to the static CIDR JSON file ("" disables the source)
	ProviderFile  string // path to the cloud provider export file ("" disables the source)
	SyncSchedule  string // cron expression for background source sync
	SNMPTarget    string // SNMP agent host for lease discovery ("" disables the source)
	SNMPCommunity string
	ProbeCIDR     string // IPv4 block to sweep for live hosts ("" disables the source)
	ConfigFile    string // path to .env file (if loaded)
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Command-line parameters (passed as opts)
// 2. .env file (if exists)
// 3. Environment variables
// 4. Default values
func Load(opts *Config) *Config {
	cfg := &Config{}

	envFile := ".env"
	if _, err := os.Stat(envFile); err == nil {
		if err := loadFromEnvFile(cfg, envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		} else {
			cfg.ConfigFile = envFile
		}
	}

	cfg.DataDir = coalesce(cfg.DataDir, os.Getenv("IPAMD_DATA_DIR"), "./data")
	cfg.ListenAddr = coalesce(cfg.ListenAddr, os.Getenv("IPAMD_LISTEN_ADDR"), ":8080")
	cfg.APIAuthToken = coalesce(cfg.APIAuthToken, os.Getenv("IPAMD_API_TOKEN"), "")
	cfg.MCPAuthToken = coalesce(cfg.MCPAuthToken, os.Getenv("IPAMD_MCP_TOKEN"), "")
	cfg.StaticFile = coalesce(cfg.StaticFile, os.Getenv("IPAMD_STATIC_FILE"), "")
	cfg.ProviderFile = coalesce(cfg.ProviderFile, os.Getenv("IPAMD_PROVIDER_FILE"), "")
	cfg.SyncSchedule = coalesce(cfg.SyncSchedule, os.Getenv("IPAMD_SYNC_SCHEDULE"), "@every 10m")
	cfg.SNMPTarget = coalesce(cfg.SNMPTarget, os.Getenv("IPAMD_SNMP_TARGET"), "")
	cfg.SNMPCommunity = coalesce(cfg.SNMPCommunity, os.Getenv("IPAMD_SNMP_COMMUNITY"), "public")
	cfg.ProbeCIDR = coalesce(cfg.ProbeCIDR, os.Getenv("IPAMD_PROBE_CIDR"), "")

	// CLI opts win over everything else.
	if opts != nil {
		if opts.DataDir != "" {
			cfg.DataDir = opts.DataDir
		}
		if opts.ListenAddr != "" {
			cfg.ListenAddr = opts.ListenAddr
		}
		if opts.APIAuthToken != "" {
			cfg.APIAuthToken = opts.APIAuthToken
		}
		if opts.MCPAuthToken != "" {
			cfg.MCPAuthToken = opts.MCPAuthToken
		}
		if opts.StaticFile != "" {
			cfg.StaticFile = opts.StaticFile
		}
		if opts.ProviderFile != "" {
			cfg.ProviderFile = opts.ProviderFile
		}
		if opts.SyncSchedule != "" {
			cfg.SyncSchedule = opts.SyncSchedule
		}
		if opts.SNMPTarget != "" {
			cfg.SNMPTarget = opts.SNMPTarget
		}
		if opts.SNMPCommunity != "" {
			cfg.SNMPCommunity = opts.SNMPCommunity
		}
		if opts.ProbeCIDR != "" {
			cfg.ProbeCIDR = opts.ProbeCIDR
		}
	}

	return cfg
}

// GetFlags returns the server command-line flags. Values pass into
// Load's opts and win over .env file and environment variables.
func GetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "data-dir", Usage: "Data directory path"},
		&cli.StringFlag{Name: "addr", Usage: "Server listen address (e.g., :8080)"},
		&cli.StringFlag{Name: "api-token", Usage: "API bearer token for authentication"},
		&cli.StringFlag{Name: "mcp-token", Usage: "MCP bearer token for authentication"},
		&cli.StringFlag{Name: "static-file", Usage: "Path to static CIDR inventory JSON file"},
		&cli.StringFlag{Name: "provider-file", Usage: "Path to cloud provider export JSON file"},
		&cli.StringFlag{Name: "sync-schedule", Usage: "Cron schedule for source sync (e.g., @every 10m)"},
		&cli.StringFlag{Name: "snmp-target", Usage: "SNMP agent host for ARP lease discovery"},
		&cli.StringFlag{Name: "snmp-community", Usage: "SNMP v2c community string"},
		&cli.StringFlag{Name: "probe-cidr", Usage: "IPv4 block to sweep for live hosts via TCP probes"},
	}
}

// FromCommand builds the CLI override set from parsed flags
func FromCommand(cmd *cli.Command) *Config {
	return &Config{
		DataDir:       cmd.GetString("data-dir"),
		ListenAddr:    cmd.GetString("addr"),
		APIAuthToken:  cmd.GetString("api-token"),
		MCPAuthToken:  cmd.GetString("mcp-token"),
		StaticFile:    cmd.GetString("static-file"),
		ProviderFile:  cmd.GetString("provider-file"),
		SyncSchedule:  cmd.GetString("sync-schedule"),
		SNMPTarget:    cmd.GetString("snmp-target"),
		SNMPCommunity: cmd.GetString("snmp-community"),
		ProbeCIDR:     cmd.GetString("probe-cidr"),
	}
}

// loadFromEnvFile loads configuration from a .env file
func loadFromEnvFile(cfg *Config, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE or KEY="VALUE"
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"")

		switch key {
		case "IPAMD_DATA_DIR":
			cfg.DataDir = value
		case "IPAMD_LISTEN_ADDR":
			cfg.ListenAddr = value
		case "IPAMD_API_TOKEN":
			cfg.APIAuthToken = value
		case "IPAMD_MCP_TOKEN":
			cfg.MCPAuthToken = value
		case "IPAMD_STATIC_FILE":
			cfg.StaticFile = value
		case "IPAMD_PROVIDER_FILE":
			cfg.ProviderFile = value
		case "IPAMD_SYNC_SCHEDULE":
			cfg.SyncSchedule = value
		case "IPAMD_SNMP_TARGET":
			cfg.SNMPTarget = value
		case "IPAMD_SNMP_COMMUNITY":
			cfg.SNMPCommunity = value
		case "IPAMD_PROBE_CIDR":
			cfg.ProbeCIDR = value
		}
	}

	return scanner.Err()
}

// IsAPIAuthEnabled checks if API authentication is configured
func (c *Config) IsAPIAuthEnabled() bool {
	return c.APIAuthToken != ""
}

// IsMCPAuthEnabled checks if MCP authentication is configured
func (c *Config) IsMCPAuthEnabled() bool {
	return c.MCPAuthToken != ""
}

// String returns a string representation of the config source
func (c *Config) String() string {
	if c.ConfigFile != "" {
		return fmt.Sprintf(".env file (%s)", c.ConfigFile)
	}
	return "environment variables"
}

// coalesce returns the first non-empty string value
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
