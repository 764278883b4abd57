package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"govstats/internal/config"
)

func refreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the snapshot once and archive it",
		Long: `Fetch indicators for every country, merge them with the reference data and
store the result in the configured snapshot archive. With --out the snapshot is also
written as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return runRefresh(cmd, cfg, out, timeout)
		},
	}

	cmd.Flags().StringP("out", "o", "", "Write the snapshot JSON to this file")
	cmd.Flags().Duration("timeout", 0, "Rebuild deadline; countries still pending are degraded (default GOVSTATS_REBUILD_TIMEOUT)")

	return cmd
}

func runRefresh(cmd *cobra.Command, cfg config.Config, out string, timeout time.Duration) error {
	if timeout > 0 {
		cfg.RebuildTimeout = timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RebuildTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	started := time.Now()
	snap, err := a.cache.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "snapshot:  %s\n", snap.ID)
	fmt.Fprintf(w, "countries: %d\n", len(snap.Countries))
	fmt.Fprintf(w, "degraded:  %d\n", snap.Degraded)
	fmt.Fprintf(w, "took:      %s\n", time.Since(started).Round(time.Millisecond))

	if out == "" {
		return nil
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(out, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(w, "written:   %s\n", out)
	return nil
}
