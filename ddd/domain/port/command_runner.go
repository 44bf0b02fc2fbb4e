package port

import "context"

// CommandResult is one external process execution's captured output.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner abstracts process execution so the Fetcher/Transcriber/
// Renderer subprocess wrappers can be exercised with a fake in tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ProgressCallback reports 0-99 encode/transcribe progress; never called
// with 100 (the caller marks completion itself on a successful exit).
type ProgressCallback func(percent int)
