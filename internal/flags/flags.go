package flags

// Package flags defines canonical CLI flag names shared across the CLI
// commands. Keeping these as constants helps avoid drift between Cobra flag
// wiring and the code that overlays changed flags onto a loaded config file.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Assessment.Policy, flags.FlagPolicy, "", "...")
//	arg := "--" + flags.FlagPolicy
const (
	// Global
	FlagConfig  = "config"
	FlagVerbose = "verbose"

	// Assessment
	FlagPolicy      = "policy"
	FlagTimeout     = "timeout"
	FlagConcurrency = "concurrency"
	FlagChecks      = "checks"
	FlagSet         = "set"

	// Output
	FlagConsoleFormat        = "console-format"
	FlagConsoleFilterOutcome = "console-filter-outcome"
	FlagReport               = "report"
	FlagOut                  = "out"
	FlagOutFormat            = "out-format"
	FlagEmit                 = "emit"
	FlagNoConsole            = "no-console"

	// Listing
	FlagQuiet = "quiet"

	// Pin
	FlagPort = "port"
)
