package main

// Exit codes
const (
	ExitSuccess     = 0   // Success
	ExitError       = 1   // General error (invalid arguments, runtime failure)
	ExitConfigError = 2   // Configuration error (invalid settings, missing input paths)
	ExitDataError   = 3   // Data error (corrupt checkpoint, unreadable corpus)
	ExitInterrupted = 130 // Pass stopped by SIGINT/SIGTERM; rerun to resume
)
