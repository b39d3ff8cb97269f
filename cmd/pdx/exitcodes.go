package main

// Exit codes
const (
	ExitSuccess       = 0 // Success
	ExitError         = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError   = 2 // Configuration error (no repository, invalid config)
	ExitDataError     = 3 // Data error (malformed input, embedding service not available)
	ExitNotFound      = 4 // Paper, chunk or summary not found
	ExitModelNotFound = 5 // Embedding model not found
	ExitIndexStale    = 6 // Vector index disagrees with the store
)
