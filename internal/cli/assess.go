package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"vaultguard/internal/config"
	"vaultguard/internal/flags"
	"vaultguard/internal/policy"
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Run the integrity checks and report a trust assessment",
	Long: `Run every enabled integrity check concurrently and fold the verdicts into a
single trust assessment.

Each check reports CLEAN, SUSPICIOUS or INCONCLUSIVE. A check that hangs past
its deadline, panics, or cannot reach its probe is reported as INCONCLUSIVE;
it never blocks the assessment.

Configuration:
	Settings are read from --config (default: vaultguard.yaml when present).
	Flags given on the command line override the file.

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write the assessment as one JSON object or an NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report: write a Markdown report
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (assessment.started, check.verdict, assessment.finished).

Exit codes:
	0 = trusted
	1 = untrusted (a policy rejected the environment)
	2 = trusted, but some checks were inconclusive
	3 = fatal configuration error (assessment did not run)

Examples:
	vaultguard assess
	vaultguard assess --policy strict --timeout 3s
	vaultguard assess --checks instrumentation,clock --set clock.min_year=2020

	# Stream machine-readable events to stdout
	vaultguard assess --no-console --emit ndjson
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		code := runAssess(ctx, cmd, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		stop()
		os.Exit(code)
	},
}

// runAssess performs one assessment and returns the process exit code.
func runAssess(ctx context.Context, cmd *cobra.Command, flagCfg *config.Config, stdout, stderr io.Writer) int {
	c, source, err := loadConfig(cmd, flagCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return policy.ExitConfiguration
	}
	if err := c.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return policy.ExitConfiguration
	}
	if !c.Output.NoConsole && source != "" {
		fmt.Fprintf(stderr, "Using configuration %s.\n", source)
	}

	caps, err := newHostCapabilities(c, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return policy.ExitConfiguration
	}
	reg, err := buildRegistry(c, caps)
	if err != nil {
		fmt.Fprintf(stderr, "Error configuring checks: %v\n", err)
		return policy.ExitConfiguration
	}
	if !c.Output.NoConsole {
		fmt.Fprintf(stderr, "Registered %d checks.\n", reg.Len())
	}

	out, err := setupOutputManager(c, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to set up output: %v\n", err)
		return policy.ExitConfiguration
	}
	eng, err := buildEngine(c, reg, out, stderr)
	if err != nil {
		out.Close()
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return policy.ExitConfiguration
	}

	a := eng.RequestAssessment(ctx, c.Assessment.Timeout)
	if err := out.Close(); err != nil {
		fmt.Fprintf(stderr, "Error: failed to write output: %v\n", err)
	}
	return policy.ExitCode(a)
}

// loadConfig reads the config file and overlays every flag the user set.
// source is the file that was read, or "" when none was.
func loadConfig(cmd *cobra.Command, flagCfg *config.Config) (c *config.Config, source string, err error) {
	path := config.DefaultPath
	if cmd.Flags().Changed(flags.FlagConfig) {
		path = configPath
		if _, err := os.Stat(path); err != nil {
			return nil, "", fmt.Errorf("config file: %w", err)
		}
	}
	if _, err := os.Stat(path); err == nil {
		source = path
	}

	c, err = config.Load(path)
	if err != nil {
		return nil, "", err
	}
	applyFlagOverrides(cmd, c, flagCfg)
	return c, source, nil
}

// flagOverlays copies one flag-bound field from src onto dst.
var flagOverlays = map[string]func(dst, src *config.Config){
	flags.FlagVerbose:     func(d, s *config.Config) { d.Runtime.Verbose = s.Runtime.Verbose },
	flags.FlagPolicy:      func(d, s *config.Config) { d.Assessment.Policy = s.Assessment.Policy },
	flags.FlagTimeout:     func(d, s *config.Config) { d.Assessment.Timeout = s.Assessment.Timeout },
	flags.FlagConcurrency: func(d, s *config.Config) { d.Assessment.Concurrency = s.Assessment.Concurrency },
	flags.FlagChecks:      func(d, s *config.Config) { d.Assessment.Selector = s.Assessment.Selector },
	// --set adds to the file's entries; later assignments win.
	flags.FlagSet: func(d, s *config.Config) {
		d.Assessment.Set = append(append([]string(nil), d.Assessment.Set...), s.Assessment.Set...)
	},
	flags.FlagConsoleFormat:        func(d, s *config.Config) { d.Output.ConsoleFormat = s.Output.ConsoleFormat },
	flags.FlagConsoleFilterOutcome: func(d, s *config.Config) { d.Output.ConsoleFilterOutcome = s.Output.ConsoleFilterOutcome },
	flags.FlagReport:               func(d, s *config.Config) { d.Output.Report = s.Output.Report },
	flags.FlagOut:                  func(d, s *config.Config) { d.Output.Out = s.Output.Out },
	flags.FlagOutFormat:            func(d, s *config.Config) { d.Output.OutFormat = s.Output.OutFormat },
	flags.FlagEmit:                 func(d, s *config.Config) { d.Output.Emit = s.Output.Emit },
	flags.FlagNoConsole:            func(d, s *config.Config) { d.Output.NoConsole = s.Output.NoConsole },
}

func applyFlagOverrides(cmd *cobra.Command, dst, src *config.Config) {
	for name, apply := range flagOverlays {
		if cmd.Flags().Changed(name) {
			apply(dst, src)
		}
	}
}

func registerAssessFlags(cmd *cobra.Command, c *config.Config) {
	// MAINTAINER NOTE: every flag bound here needs an entry in flagOverlays,
	// or it is silently ignored once a config file is loaded.

	// Assessment
	cmd.Flags().StringVar(&c.Assessment.Policy, flags.FlagPolicy, c.Assessment.Policy, "Aggregation policy: any-suspicious|strict|weighted (default: any-suspicious)")
	cmd.Flags().DurationVar(&c.Assessment.Timeout, flags.FlagTimeout, c.Assessment.Timeout, "Overall assessment deadline")
	cmd.Flags().IntVar(&c.Assessment.Concurrency, flags.FlagConcurrency, 0, "Checks evaluated at once (0 = one worker per check)")
	cmd.Flags().StringVar(&c.Assessment.Selector, flags.FlagChecks, "", "Comma-separated check IDs to run (empty = every enabled check)")
	cmd.Flags().StringSliceVar(&c.Assessment.Set, flags.FlagSet, nil, "Per-check options as checkID.option=value (repeatable; comma-separated accepted; ';' separates list items)")

	// Output
	cmd.Flags().StringVar(&c.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson (default: text)")
	cmd.Flags().StringSliceVar(&c.Output.ConsoleFilterOutcome, flags.FlagConsoleFilterOutcome, nil, "Filter console verdicts by outcome (CLEAN, SUSPICIOUS, INCONCLUSIVE). Comma-separated.")
	cmd.Flags().StringVar(&c.Output.Report, flags.FlagReport, "", "Write a Markdown report to this path")
	cmd.Flags().StringVar(&c.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	cmd.Flags().StringVar(&c.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	cmd.Flags().StringSliceVar(&c.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	cmd.Flags().BoolVar(&c.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")
}

func init() {
	rootCmd.AddCommand(assessCmd)
	registerAssessFlags(assessCmd, cfg)
}
