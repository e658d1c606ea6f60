package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/models/reports"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := connect(cmd); err != nil {
			return err
		}
		if err := models.MigrateTable(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Println("schema is up to date")
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an extracted budget document (.json or .xlsx) as a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := connect(cmd)
		if err != nil {
			return err
		}
		path := args[0]
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var doc *models.BudgetDocument
		switch strings.ToLower(filepath.Ext(path)) {
		case ".xlsx":
			doc, err = reports.ReadBudgetDocument(bytes.NewReader(raw), filepath.Base(path))
			if err != nil {
				return err
			}
		case ".json":
			doc = &models.BudgetDocument{}
			if err := json.Unmarshal(raw, doc); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if doc.Source == "" {
				doc.Source = filepath.Base(path)
			}
		default:
			return fmt.Errorf("%s: expected a .json or .xlsx file", path)
		}

		result, err := models.ImportBudgetDocument(ctx, doc, raw, actorFlag)
		if err != nil {
			return err
		}
		fmt.Printf("imported project %d (%s): %d cost lines, %d overheads, total %s\n",
			result.Project.ID, result.Project.Name, len(result.Costs), len(result.Overheads), result.Project.TotalProjectCost.StringFixed(2))
		if result.ArchiveURI != "" {
			fmt.Println("archived to", result.ArchiveURI)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <project|project_cost|project_overhead> <id>",
	Short: "Print the current version and archived versions of an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid id %q", args[1])
		}
		ctx, err := connect(cmd)
		if err != nil {
			return err
		}
		switch models.EntityKind(args[0]) {
		case models.KindProject:
			history, err := models.ListProjectVersions(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(history)
		case models.KindProjectCost:
			history, err := models.ListProjectCostVersions(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(history)
		case models.KindProjectOverhead:
			history, err := models.ListProjectOverheadVersions(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(history)
		}
		return fmt.Errorf("unknown entity kind %q", args[0])
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <project-id> <file.xlsx>",
	Short: "Write a project's budget and version history to a workbook",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid project id %q", args[0])
		}
		ctx, err := connect(cmd)
		if err != nil {
			return err
		}
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		if err := reports.WriteBudgetWorkbook(ctx, id, f); err != nil {
			_ = f.Close()
			_ = os.Remove(args[1])
			return err
		}
		return f.Close()
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and replay the budget event outbox",
}

var eventsReplayCmd = &cobra.Command{
	Use:   "replay [project-id]",
	Short: "Requeue DEAD and FAILED events, optionally for one project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectId := 0
		if len(args) == 1 {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid project id %q", args[0])
			}
			projectId = id
		}
		ctx, err := connect(cmd)
		if err != nil {
			return err
		}
		n, err := models.ReplayBudgetEvents(ctx, projectId)
		if err != nil {
			return err
		}
		fmt.Printf("requeued %d event(s)\n", n)
		return nil
	},
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outbox events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := connect(cmd)
		if err != nil {
			return err
		}
		projectId, _ := cmd.Flags().GetInt("project")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		var pid *int
		if projectId > 0 {
			pid = &projectId
		}
		var st *string
		if status != "" {
			upper := strings.ToUpper(status)
			st = &upper
		}
		events, err := models.ListBudgetEvents(ctx, pid, st, limit)
		if err != nil {
			return err
		}
		fmt.Printf("%-6s %-18s %-8s %-9s %-10s %-8s %s\n", "ID", "Kind", "Entity", "Version", "Status", "Attempts", "Actor")
		for _, e := range events {
			fmt.Printf("%-6d %-18s %-8d %d->%-6d %-10s %-8d %s\n",
				e.ID, e.EntityKind, e.EntityId, e.OldVersion, e.NewVersion, e.PublishStatus, e.PublishAttempts, e.ChangedBy)
		}
		return nil
	},
}

func init() {
	eventsListCmd.Flags().Int("project", 0, "filter by project id")
	eventsListCmd.Flags().String("status", "", "filter by publish status")
	eventsListCmd.Flags().Int("limit", 50, "maximum rows")
	eventsCmd.AddCommand(eventsReplayCmd)
	eventsCmd.AddCommand(eventsListCmd)
}
