package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthkin/questlink/internal/model"
	"github.com/hearthkin/questlink/internal/pairing"
	"github.com/hearthkin/questlink/internal/remote"
)

var (
	assignTitle  string
	assignPoints int

	tasksChildID string

	migrateAll bool
)

func init() {
	assignCmd.Flags().StringVar(&assignTitle, "title", "", "quest title to snapshot (required)")
	assignCmd.Flags().IntVar(&assignPoints, "points", 0, "point value to snapshot")
	assignCmd.MarkFlagRequired("title")

	tasksCmd.Flags().StringVar(&tasksChildID, "for", "", "list a linked child's tasks (parent view)")

	migrateCmd.Flags().BoolVar(&migrateAll, "all", false, "rewrite every matching snapshot, not only empty ones")
}

var assignCmd = &cobra.Command{
	Use:   "assign <child-id> <quest-id>",
	Short: "Assign a quest to a linked child",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := requireParent()
		if err != nil {
			return err
		}
		task, err := app.Service.Assign(cmd.Context(), parent, args[0], args[1], assignTitle, assignPoints)
		if remote.Queued(err) {
			fmt.Println("Offline: assignment queued.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Assigned %q (%d pts) to %s as %s\n", task.Title, task.Points, task.ChildID, task.ID)
		return nil
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List active quest assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if tasksChildID != "" {
			parent, err := requireParent()
			if err != nil {
				return err
			}
			tasks, err := app.Service.TasksForParentChild(ctx, parent, tasksChildID)
			if err != nil {
				return err
			}
			printTasks(tasks)
			return nil
		}

		child, err := requireChild()
		if err != nil {
			return err
		}
		tasks, err := app.Service.TasksForChild(ctx, child)
		if err != nil {
			return err
		}
		printTasks(tasks)
		return nil
	},
}

var unassignCmd = &cobra.Command{
	Use:   "unassign <assignment-id>",
	Short: "Withdraw a quest assignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := app.Service.Unassign(cmd.Context(), args[0])
		if remote.Queued(err) {
			fmt.Println("Offline: unassign queued.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("Unassigned.")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <quest-map.json>",
	Short: "Repair assignment snapshots from a quest map file",
	Long: `Reads a JSON object mapping quest ids to {"title": ..., "points": ...}
and rewrites matching assignment snapshots. By default only assignments
with an empty title or zero points are touched; --all rewrites every
assignment the map covers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var questMap map[string]pairing.QuestSnapshot
		if err := json.Unmarshal(raw, &questMap); err != nil {
			return fmt.Errorf("parse quest map: %w", err)
		}
		updated, err := app.Service.MigrateSnapshots(cmd.Context(), questMap, !migrateAll)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %d assignment(s).\n", updated)
		return nil
	},
}

func printTasks(tasks []model.AssignedTask) {
	if len(tasks) == 0 {
		fmt.Println("No active assignments.")
		return
	}
	for _, t := range tasks {
		fmt.Printf("%s  %q  %d pts  child=%s  assigned=%s\n",
			t.ID, t.Title, t.Points, t.ChildID, t.AssignedAt.Local().Format(time.RFC822))
	}
}
