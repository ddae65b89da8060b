package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vaultguard/internal/config"
	"vaultguard/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// cfg receives flag values. Commands that read a config file overlay the
// flags the user actually set onto the loaded file (see loadConfig).
var cfg = config.New()

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vaultguard",
	Short: "Assess whether the runtime environment can be trusted with secrets",
	Long: `Vaultguard runs a set of independent runtime integrity checks concurrently
and folds their verdicts into a single trust assessment.

Checks cover instrumentation toolkits, attached debuggers, emulated or
virtualised hosts, a pinned TLS channel, clock tampering and root artefacts.
Vaultguard only observes: it never modifies the host.

Examples:
	# Show available commands and global flags
	vaultguard --help

	# Run an assessment with the default checks
	vaultguard assess

	# List checks and their options
	vaultguard checks list

	# Print the pins served by a host
	vaultguard pin api.example.com

	# Print build info
	vaultguard version

Output:
	By default, commands write human-readable output to stdout.
	Some commands support structured output via emitter flags (see each command's --help).`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every check and TLS handshake to stderr)")
	rootCmd.PersistentFlags().StringVar(&configPath, flags.FlagConfig, "", "Path to a YAML config file (default: "+config.DefaultPath+" if present)")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
