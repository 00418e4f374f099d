package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"block-watch/app"
	"block-watch/config"
	"block-watch/domain/enrich"
	"block-watch/domain/lookup"
	"block-watch/domain/report"
	"block-watch/domain/store"

	"github.com/spf13/cobra"
)

var (
	configPath string
	asJSON     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "block-watch",
		Short: "host-level IP blocking with automatic expiry",
		Long:  "block-watch enforces block/unblock decisions against iptables, records every decision durably, and reverses blocks after a fixed TTL.",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config path")

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "run the blocking daemon (sweeper and monitors)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configPath); err != nil {
				return err
			}
			return app.Start()
		},
	}

	blockCmd := &cobra.Command{
		Use:   "block <IP>",
		Short: "block an address in both directions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configPath); err != nil {
				return err
			}
			if !app.NewManager().Block(args[0]) {
				return fmt.Errorf("block of '%s' incomplete", args[0])
			}
			fmt.Printf("✔ blocked %s\n", args[0])
			return nil
		},
	}

	unblockCmd := &cobra.Command{
		Use:   "unblock <IP>",
		Short: "unblock an address in both directions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configPath); err != nil {
				return err
			}
			if !app.NewManager().Unblock(args[0]) {
				return fmt.Errorf("unblock of '%s' incomplete", args[0])
			}
			fmt.Printf("✔ unblocked %s\n", args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list the currently blocked addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configPath); err != nil {
				return err
			}
			printActive(app.NewManager().ListActive())
			return nil
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")

	resolveCmd := &cobra.Command{
		Use:   "resolve <host>",
		Short: "resolve a host name to blockable addresses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ips := lookup.NewResolver().Resolve(context.Background(), args[0])
			if len(ips) == 0 {
				fmt.Println("(no addresses found)")
				return nil
			}
			for _, ip := range ips {
				fmt.Println(ip)
			}
			return nil
		},
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "blocking statistics derived from the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configPath); err != nil {
				return err
			}
			return printReport()
		},
	}
	reportCmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")

	logsCmd := &cobra.Command{
		Use:   "logs [n]",
		Short: "print the most recent audit log lines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configPath); err != nil {
				return err
			}
			n := 20
			if len(args) == 1 {
				if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil {
					return fmt.Errorf("invalid line count '%s'", args[0])
				}
			}
			for _, line := range app.NewManager().RecentAuditLines(n) {
				fmt.Println(line)
			}
			return nil
		},
	}

	rootCmd.AddCommand(daemonCmd, blockCmd, unblockCmd, listCmd, resolveCmd, reportCmd, logsCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printActive(active []store.BlockEvent) {
	if asJSON {
		b, _ := json.MarshalIndent(active, "", "  ")
		fmt.Println(string(b))
		return
	}
	if len(active) == 0 {
		fmt.Println("(no blocked IPs)")
		return
	}
	fmt.Printf("%-40s %s\n", "IP", "Blocked at")
	for _, ev := range active {
		fmt.Printf("%-40s %s\n", ev.IP, ev.Time.Format(time.RFC3339))
	}
}

func printReport() error {
	events, err := store.New(config.Props.StorePath).Load()
	if err != nil {
		return err
	}
	e := enrich.New(config.Props.GeoIPDir)
	defer e.Close()
	summary := report.Summarize(events)
	rows := report.Rows(events, e)
	if asJSON {
		out := struct {
			Summary report.Summary `json:"summary"`
			Rows    []report.Row   `json:"rows"`
		}{summary, rows}
		b, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(b))
		return nil
	}
	fmt.Printf("Blocks: %d  Unblocks: %d  Unique IPs: %d\n", summary.TotalBlocks, summary.TotalUnblocks, summary.UniqueIPs)
	if !summary.FirstBlock.IsZero() {
		fmt.Printf("First block: %s  Last block: %s\n", summary.FirstBlock.Format(time.RFC3339), summary.LastBlock.Format(time.RFC3339))
	}
	if len(rows) > 0 {
		fmt.Printf("%-40s %-7s %-20s %s\n", "IP", "Blocks", "Last block", "Country")
		for _, r := range rows {
			fmt.Printf("%-40s %-7d %-20s %s\n", r.IP, r.Blocks, r.LastBlock.Format(time.RFC3339), r.Country)
		}
	}
	return nil
}
