package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lexflow/lexflow/internal/config"
	"github.com/lexflow/lexflow/internal/state"
	"github.com/lexflow/lexflow/pkg/models"
)

var statusMatter string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent plans and their tasks",
	Long: `Display recent orchestration plans and the state of their tasks.

Shows, per plan:
  - The original request and overall status
  - Each agent task with status, progress, and duration`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusMatter, "matter", "", "Matter ID to filter by (empty for general scope)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := openStateDB()
	if err != nil {
		return err
	}
	if db == nil {
		fmt.Println("No work recorded yet. Run 'lexflow run <request>' to start.")
		return nil
	}
	defer db.Close()

	plans, err := db.ListPlansByMatter(statusMatter)
	if err != nil {
		return fmt.Errorf("list plans: %w", err)
	}
	if len(plans) == 0 {
		fmt.Println("No work recorded yet. Run 'lexflow run <request>' to start.")
		return nil
	}

	const maxPlans = 10
	if len(plans) > maxPlans {
		plans = plans[:maxPlans]
	}

	for i, plan := range plans {
		if i > 0 {
			fmt.Println()
		}
		displayPlan(db, &plan)
	}
	return nil
}

// openStateDB opens the configured database, or returns nil if no
// database file exists yet.
func openStateDB() (*state.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func displayPlan(db *state.DB, plan *models.Plan) {
	request := plan.Request
	if len(request) > 60 {
		request = request[:57] + "..."
	}

	fmt.Printf("Plan %s %s\n", plan.ID[:8], planStatusColored(plan.Status))
	fmt.Printf("  Request: %q\n", request)
	if plan.MatterID != "" {
		fmt.Printf("  Matter:  %s\n", plan.MatterID)
	}
	fmt.Printf("  Created: %s ago, estimated %ds\n", formatDuration(time.Since(plan.CreatedAt)), plan.EstimatedSeconds)

	tasks, err := db.ListTasksByPlan(plan.ID)
	if err != nil {
		fmt.Printf("  (tasks unavailable: %v)\n", err)
		return
	}
	for _, task := range tasks {
		displayTask(&task)
	}
}

func displayTask(task *models.Task) {
	duration := ""
	if task.StartedAt != nil {
		end := time.Now()
		if task.CompletedAt != nil {
			end = *task.CompletedAt
		}
		duration = fmt.Sprintf(" (%s)", formatDuration(end.Sub(*task.StartedAt)))
	}

	detail := ""
	switch task.Status {
	case models.TaskStatusRunning:
		detail = fmt.Sprintf(" %d%% %s", task.Progress, task.CurrentStep)
	case models.TaskStatusFailed:
		detail = " " + task.Error
	}

	fmt.Printf("  %s %-16s%s%s\n", taskStatusSymbol(task.Status), task.AgentType, detail, duration)
}

func planStatusColored(s models.PlanStatus) string {
	switch s {
	case models.PlanStatusCompleted:
		return color.GreenString(string(s))
	case models.PlanStatusFailed:
		return color.RedString(string(s))
	case models.PlanStatusExecuting:
		return color.BlueString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func taskStatusSymbol(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.RedString("✗")
	case models.TaskStatusRunning:
		return color.BlueString("◐")
	case models.TaskStatusCancelled:
		return color.YellowString("⚠")
	default:
		return color.YellowString("○")
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
