package main

import (
	"context"
	"os"

	"github.com/martinsuchenak/ipamd/cmd/cidr"
	"github.com/martinsuchenak/ipamd/cmd/probe"
	"github.com/martinsuchenak/ipamd/cmd/server"
	"github.com/martinsuchenak/ipamd/internal/log"
	"github.com/paularlott/cli"
	"github.com/paularlott/cli/env"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Load .env file if it exists
	env.Load()

	// Initialize structured logging
	log.Configure("info", "console")

	rootCmd := &cli.Command{
		Name:        "ipamd",
		Version:     version,
		Usage:       "IP address space manager with MCP server support",
		Description: "A Go-based IPAM service tracking CIDR blocks in a containment hierarchy, with HTTP API, MCP server, and CLI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:         "log-level",
				Usage:        "Log level (trace, debug, info, warn, error)",
				DefaultValue: "info",
				EnvVars:      []string{"IPAMD_LOG_LEVEL"},
				Global:       true,
			},
			&cli.StringFlag{
				Name:         "log-format",
				Usage:        "Log format (console, json)",
				DefaultValue: "console",
				EnvVars:      []string{"IPAMD_LOG_FORMAT"},
				Global:       true,
			},
		},
		PreRun: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logLevel := cmd.GetString("log-level")
			logFormat := cmd.GetString("log-format")
			log.Configure(logLevel, logFormat)
			return ctx, nil
		},
		Commands: []*cli.Command{
			server.Command(),
			{
				Name:        "cidr",
				Usage:       "CIDR management commands",
				Description: "Manage CIDR blocks in the address space",
				Commands:    cidr.Commands(),
			},
			probe.Command(),
		},
	}

	if err := rootCmd.Execute(context.Background()); err != nil {
		log.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
