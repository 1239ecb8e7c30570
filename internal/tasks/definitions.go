package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	// Register general tasks
	RegisterHandler(LogInfoTask.TaskID(), LogInfoTask.HandleExecution)

	// Register billing sweeps
	RegisterHandler(RenewalSweepTask.TaskID(), RenewalSweepTask.HandleExecution)
	RegisterHandler(ExpireSessionsTask.TaskID(), ExpireSessionsTask.HandleExecution)
}
