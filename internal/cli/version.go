package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version, build and toolchain information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

// modulePath names the main module, or "vaultguard" when the binary carries
// no build info (for example under go test).
func modulePath() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Path != "" {
		return bi.Main.Path
	}
	return "vaultguard"
}

func printVersion(w io.Writer) {
	version, commit, date := BuildInfo()
	fmt.Fprintf(w, "vaultguard %s\n", version)
	for _, row := range [][2]string{
		{"module", modulePath()},
		{"commit", commit},
		{"built", date},
		{"go", runtime.Version()},
		{"platform", runtime.GOOS + "/" + runtime.GOARCH},
	} {
		fmt.Fprintf(w, "  %-9s %s\n", row[0]+":", row[1])
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
