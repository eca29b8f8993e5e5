package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/martinsuchenak/ipamd/internal/source"
	"github.com/paularlott/cli"
)

// Command runs a probe sweep locally and prints the results, without
// registering anything with a server. Useful for checking what a configured
// probe source would feed into a sync pass.
func Command() *cli.Command {
	return &cli.Command{
		Name:        "probe",
		Usage:       "Sweep a block for live hosts",
		Description: "Probe an IPv4 block for live hosts via TCP connects and print the discovered leases",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "cidr",
				Usage:    "IPv4 block to sweep (e.g., 192.168.1.0/24)",
				Required: true,
			},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cidr := cmd.GetString("cidr")

			fmt.Printf("Sweeping %s...\n", cidr)
			start := time.Now()

			src := source.NewProbeSource(cidr)
			records, err := src.Fetch(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}

			fmt.Printf("Done in %v, %d live host(s)\n", time.Since(start).Round(time.Millisecond), len(records))
			for _, rec := range records {
				fmt.Printf("  %-20s %s\n", rec.CIDR, strings.Join(rec.Tags, " "))
			}
			return nil
		},
	}
}
