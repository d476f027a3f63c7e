package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/inkpilot/internal/state"
	"github.com/user/inkpilot/internal/syncer"
	"github.com/user/inkpilot/internal/types"
)

func init() {
	rootCmd.AddCommand(syncCmd, snapshotCmd)
	syncCmd.AddCommand(syncStatusCmd, syncPushCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect and push locally buffered artifact content",
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List artifacts with unsynced snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		snaps, err := openSnapshots(cfg)
		if err != nil {
			return err
		}
		defer snaps.Close()

		ctx := context.Background()
		ids, err := snaps.PendingArtifacts(ctx)
		if err != nil {
			return fmt.Errorf("list pending artifacts: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("All artifacts are synced.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ARTIFACT\tTITLE\tVERSION\tSAVED")
		for _, id := range ids {
			snap, err := snaps.LatestPending(ctx, id)
			if err != nil || snap == nil {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", id, snap.Title, snap.Version, snap.Timestamp.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var syncPushCmd = &cobra.Command{
	Use:   "push [artifact-id]",
	Short: "Push pending snapshots to the configured remote",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		snaps, err := openSnapshots(cfg)
		if err != nil {
			return err
		}
		defer snaps.Close()

		remoteStore, err := newRemote(cfg, state.NewDocumentStore(cfg.DataDir))
		if err != nil {
			return err
		}
		engine := syncer.New(snaps, remoteStore, syncer.Options{
			MinSpacing: time.Duration(cfg.Sync.MinUpdateSpacingMs) * time.Millisecond,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := engine.Start(ctx); err != nil {
			return err
		}

		if len(args) == 1 {
			err = engine.SyncArtifact(ctx, types.ArtifactID(args[0]))
		} else {
			err = engine.Sweep(ctx)
		}
		printStatuses(engine.Statuses())
		return err
	},
}

func printStatuses(states map[types.ArtifactID]types.SyncState) {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		st := states[types.ArtifactID(id)]
		line := fmt.Sprintf("%s: %s", id, st.Status)
		if st.Error != "" {
			line += " (" + st.Error + ")"
		}
		fmt.Fprintln(os.Stdout, line)
	}
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect local content snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list <artifact-id>",
	Short: "List retained snapshots of an artifact, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		snaps, err := openSnapshots(cfg)
		if err != nil {
			return err
		}
		defer snaps.Close()

		list, err := snaps.List(context.Background(), types.ArtifactID(args[0]))
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No snapshots found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tPENDING\tBYTES\tSAVED")
		for _, s := range list {
			fmt.Fprintf(w, "%d\t%t\t%d\t%s\n", s.Version, s.PendingSync, len(s.Content), s.Timestamp.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}
