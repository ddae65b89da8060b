package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vaultguard/internal/checks"
	"vaultguard/internal/config"
	"vaultguard/internal/flags"
)

var checksListQuiet bool
var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "Manage and list checks",
	Long: `Manage Vaultguard checks.

This command group helps you discover which checks exist, what each one
observes, and which options it accepts via --set.
Checks are evaluated during assessments (see "vaultguard assess --help").

Examples:
  # List all available checks
  vaultguard checks list
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var checksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available checks",
	Long: `List every check built into this binary, enabled or not.

Checks are sorted by check ID. Enabled state reflects the loaded config file;
option defaults are the built-in values.

Examples:
  vaultguard checks list

Output:
  A vertical list of checks:
    ----------------------------------------
    CHECK: {ID} ({enabled|disabled})
    ----------------------------------------
    {TITLE}
    {DESCRIPTION}
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, reg, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		for _, chk := range checks.SortedByID(reg.List()) {
			if checksListQuiet {
				fmt.Fprintln(cmd.OutOrStdout(), chk.ID())
			} else {
				printCheck(cmd.OutOrStdout(), chk, enabled(c, chk.ID()))
			}
		}
		return nil
	},
}

var checksShowCmd = &cobra.Command{
	Use:   "show [check-id]",
	Short: "Show details of a specific check",
	Long: `Show details of a specific check by its ID.

Examples:
  vaultguard checks show instrumentation
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, reg, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		list, err := reg.Resolve(args[0])
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return fmt.Errorf("check not found: %s", args[0])
		}
		printCheck(cmd.OutOrStdout(), list[0], enabled(c, list[0].ID()))
		return nil
	},
}

func loadCatalog(cmd *cobra.Command) (*config.Config, *checks.Registry, error) {
	c, _, err := loadConfig(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	caps, err := newHostCapabilities(c, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	reg, err := catalog(c, caps)
	if err != nil {
		return nil, nil, err
	}
	return c, reg, nil
}

func printCheck(w io.Writer, c checks.Check, isEnabled bool) {
	bold := color.New(color.Bold)
	state := "disabled"
	if isEnabled {
		state = "enabled"
	}
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "CHECK: %s", c.ID())
	fmt.Fprintf(w, " (%s)\n", state)
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintln(w, c.Title())
	fmt.Fprintln(w, c.Description())

	if cc, ok := c.(checks.ConfigurableCheck); ok {
		opts := cc.Options()
		if len(opts) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Options:")
			for _, opt := range opts {
				def := opt.Default
				if def == "" {
					def = "\"\""
				}
				fmt.Fprintf(w, "  %s\n", opt.Name)
				fmt.Fprintf(w, "    Description: %s\n", opt.Description)
				fmt.Fprintf(w, "    Default:     %s\n", def)
			}
		}
	}
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(checksCmd)
	checksCmd.AddCommand(checksListCmd)
	checksListCmd.Flags().BoolVarP(&checksListQuiet, flags.FlagQuiet, "q", false, "Only print check IDs")
	checksCmd.AddCommand(checksShowCmd)
}
