package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"traderoom_app_echo/internal/models"
	"traderoom_app_echo/internal/services"
	"traderoom_app_echo/internal/tasks"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	// defined flags
	taskName := flag.String("task_name", "", "Name of the task (mandatory unless -seed_sweeps)")
	argsStr := flag.String("arguments", "{}", "JSON arguments for the task (optional)")
	dueStr := flag.String("due", "", "Due date (mandatory unless -seed_sweeps, format: 2006-01-02 15:04)")
	taskType := flag.String("tasktype", "onetime", "Task type (optional, default: onetime)")
	recurring := flag.String("recurring", "", "Recurring interval rule (optional)")
	maxAttempt := flag.Int("max_attempt", 3, "Max attempts (optional, default: 3)")
	seedSweeps := flag.Bool("seed_sweeps", false, "Create the recurring billing sweep tasks and exit")

	flag.Parse()

	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	// Init DB
	db, err := services.InitDB(dsn)
	if err != nil {
		log.Fatalf("Failed to connect DB: %v", err)
	}

	if *seedSweeps {
		seedSweepTasks(db)
		return
	}

	// Validation
	if *taskName == "" || *dueStr == "" {
		fmt.Println("Usage: schedule_task -task_name <name> -due <YYYY-MM-DD HH:MM> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Parse arguments JSON
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(*argsStr), &args); err != nil {
		log.Fatalf("Invalid JSON arguments: %v", err)
	}

	// Parse due date. RFC3339 first, then the simple local layout.
	due, err := time.Parse(time.RFC3339, *dueStr)
	if err != nil {
		due, err = time.ParseInLocation("2006-01-02 15:04", *dueStr, time.Local)
		if err != nil {
			log.Fatalf("Invalid due date format. Use '2006-01-02 15:04' (Local) or RFC3339: %v", err)
		}
	}

	// Recurring ptr
	var recurringPtr *string
	if *recurring != "" {
		recurringPtr = recurring
	}

	task := models.ScheduledTask{
		TaskName:          *taskName,
		Arguments:         args,
		Due:               due,
		TaskType:          models.ScheduledTaskType(*taskType),
		RecurringInterval: recurringPtr,
		MaxAttempt:        *maxAttempt,
		Status:            models.ScheduledTaskStatusActive,
	}

	if err := db.Create(&task).Error; err != nil {
		log.Fatalf("Failed to create task: %v", err)
	}

	fmt.Printf("Successfully created task ID: %d\n", task.ID)
	fmt.Printf("Task: %s\nDue: %s\nType: %s\n", task.TaskName, task.Due, task.TaskType)
}

// seedSweepTasks creates the recurring renewal and session-expiry sweeps if
// they do not exist yet. Safe to run more than once.
func seedSweepTasks(db *gorm.DB) {
	sweeps := []struct {
		name string
		rule string
	}{
		{tasks.RenewalSweepTask.TaskID(), "FREQ=DAILY;INTERVAL=1"},
		{tasks.ExpireSessionsTask.TaskID(), "FREQ=HOURLY;INTERVAL=1"},
	}

	for _, sweep := range sweeps {
		var count int64
		if err := db.Model(&models.ScheduledTask{}).
			Where("task_name = ? AND status = ?", sweep.name, models.ScheduledTaskStatusActive).
			Count(&count).Error; err != nil {
			log.Fatalf("Failed to check existing task %s: %v", sweep.name, err)
		}
		if count > 0 {
			fmt.Printf("Task %s already scheduled, skipping\n", sweep.name)
			continue
		}

		rule := sweep.rule
		task := models.ScheduledTask{
			TaskName:          sweep.name,
			Arguments:         map[string]interface{}{},
			Due:               time.Now(),
			TaskType:          models.ScheduledTaskTypeRecurring,
			RecurringInterval: &rule,
			MaxAttempt:        3,
			Status:            models.ScheduledTaskStatusActive,
		}
		if err := db.Create(&task).Error; err != nil {
			log.Fatalf("Failed to create task %s: %v", sweep.name, err)
		}
		fmt.Printf("Scheduled %s (ID: %d)\n", sweep.name, task.ID)
	}
}
