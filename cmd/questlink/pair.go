package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthkin/questlink/internal/remote"
)

var codeTTLMinutes int

func init() {
	pairCodeCmd.Flags().IntVar(&codeTTLMinutes, "ttl", 0, "code lifetime in minutes (default 15)")

	pairCmd.AddCommand(pairCodeCmd)
	pairCmd.AddCommand(pairEnterCmd)
	pairCmd.AddCommand(pairPendingCmd)
	pairCmd.AddCommand(pairApproveCmd)
	pairCmd.AddCommand(pairDeclineCmd)
	pairCmd.AddCommand(pairUnlinkCmd)
}

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair this device with another",
}

var pairCodeCmd = &cobra.Command{
	Use:   "code",
	Short: "Generate a pairing code to show on the child's device",
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := requireParent()
		if err != nil {
			return err
		}
		code, err := app.Service.GenerateCode(cmd.Context(), parent, time.Duration(codeTTLMinutes)*time.Minute)
		if err != nil {
			return err
		}
		fmt.Printf("Pairing code: %s (expires %s)\n", code.Code, code.ExpiresAt.Local().Format(time.Kitchen))
		return nil
	},
}

var pairEnterCmd = &cobra.Command{
	Use:   "enter <code>",
	Short: "Enter a pairing code from the parent's device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		child, err := requireChild()
		if err != nil {
			return err
		}
		link, err := app.Service.EnterCodeAsChild(cmd.Context(), child, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Request sent. Waiting for parent approval (link %s).\n", link.ID)
		return nil
	},
}

var pairPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pairing requests awaiting your approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := requireParent()
		if err != nil {
			return err
		}
		links, err := app.Service.PendingForParent(cmd.Context(), parent)
		if err != nil {
			return err
		}
		if len(links) == 0 {
			fmt.Println("No pending requests.")
			return nil
		}
		for _, l := range links {
			fmt.Printf("%s  child=%s  requested=%s\n", l.ID, l.ChildID, l.CreatedAt.Local().Format(time.RFC822))
		}
		return nil
	},
}

var pairApproveCmd = &cobra.Command{
	Use:   "approve <link-id>",
	Short: "Approve a pending pairing request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := requireParent()
		if err != nil {
			return err
		}
		_, err = app.Service.Approve(cmd.Context(), parent, args[0])
		if remote.Queued(err) {
			fmt.Println("Offline: approval queued and will sync when the relay is reachable.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("Approved.")
		return nil
	},
}

var pairDeclineCmd = &cobra.Command{
	Use:   "decline <link-id>",
	Short: "Decline a pending pairing request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := app.Service.Decline(cmd.Context(), args[0])
		if remote.Queued(err) {
			fmt.Println("Offline: decline queued.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("Declined.")
		return nil
	},
}

var pairUnlinkCmd = &cobra.Command{
	Use:   "unlink <child-id>",
	Short: "Remove the active link to a child",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := requireParent()
		if err != nil {
			return err
		}
		err = app.Service.Unlink(cmd.Context(), parent, args[0])
		if remote.Queued(err) {
			fmt.Println("Offline: unlink queued.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("Unlinked.")
		return nil
	},
}

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "List active links for this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		shown := false
		if cfg.ParentID != "" {
			links, err := app.Service.ActiveForParent(ctx, cfg.ParentID)
			if err != nil {
				return err
			}
			for _, l := range links {
				fmt.Printf("%s  child=%s  since=%s\n", l.ID, l.ChildID, l.UpdatedAt.Local().Format(time.RFC822))
			}
			shown = true
		}
		if cfg.ChildID != "" {
			links, err := app.Service.ActiveForChild(ctx, cfg.ChildID)
			if err != nil {
				return err
			}
			for _, l := range links {
				fmt.Printf("%s  parent=%s  since=%s\n", l.ID, l.ParentID, l.UpdatedAt.Local().Format(time.RFC822))
			}
			shown = true
		}
		if !shown {
			return fmt.Errorf("no device identity: set parent_id or child_id, or pass --parent/--child")
		}
		return nil
	},
}
