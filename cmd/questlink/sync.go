package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hearthkin/questlink/internal/client"
	"github.com/hearthkin/questlink/internal/model"
	"github.com/hearthkin/questlink/internal/remote"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Replay writes queued while offline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.Mode != client.ModeRemote {
			fmt.Println("Local mode: nothing to flush.")
			return nil
		}

		before, err := app.Queue().Len()
		if err != nil {
			return err
		}
		if before == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		res, err := app.Flush(cmd.Context())
		if err != nil {
			return err
		}
		after, err := app.Queue().Len()
		if err != nil {
			return err
		}

		if !app.Transport().Online() {
			fmt.Printf("Relay unreachable: %d write(s) still queued.\n", after)
			return nil
		}
		fmt.Printf("Replayed %d, dropped %d, %d still queued.\n", res.Processed, res.Failed, after)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for new pairing requests and assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.ParentID == "" && cfg.ChildID == "" {
			return fmt.Errorf("no device identity: set parent_id or child_id, or pass --parent/--child")
		}

		p := remote.NewPoller(app.Service, cfg.ParentID, cfg.ChildID, cfg.Sync.PollEvery(), logger)
		p.OnPendingLink(func(l model.Link) {
			fmt.Printf("Pairing request from child %s (link %s). Run: questlink pair approve %s\n",
				l.ChildID, l.ID, l.ID)
		})
		p.OnAssignedTask(func(t model.AssignedTask) {
			fmt.Printf("New quest: %q (%d pts) [%s]\n", t.Title, t.Points, t.ID)
		})

		fmt.Println("Watching. Press Ctrl-C to stop.")
		p.Start(cmd.Context())
		defer p.Stop()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-cmd.Context().Done():
		}
		return nil
	},
}
