package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"vaultguard/internal/flags"
	"vaultguard/internal/platform"
)

var (
	pinPort    int
	pinTimeout time.Duration
)

var pinCmd = &cobra.Command{
	Use:   "pin <host[:port]>",
	Short: "Print the public-key pins of the chain a host serves",
	Long: `Complete a TLS handshake with a host and print the sha256/<base64> pin of
every certificate it presents, leaf first.

The chain is not verified against system roots. Run this from a network you
trust, then copy the pin at the depth you want into checks.channel.pins.

Examples:
  vaultguard pin api.example.com
  vaultguard pin api.example.com:8443
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), pinTimeout)
		defer cancel()
		return printPins(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], pinPort, cfg.Runtime.Verbose)
	},
}

func printPins(ctx context.Context, w, logw io.Writer, host string, port int, verbose bool) error {
	h, err := platform.NewTLSHandshaker(platform.WithPort(port), platform.WithVerbose(verbose, logw))
	if err != nil {
		return err
	}
	st, err := h.Handshake(ctx, host)
	if err != nil {
		return err
	}
	if len(st.ChainPins) == 0 {
		return fmt.Errorf("%s presented no certificates", host)
	}
	for depth, pin := range st.ChainPins {
		fmt.Fprintf(w, "%d  %s\n", depth, pin)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(pinCmd)
	pinCmd.Flags().IntVar(&pinPort, flags.FlagPort, platform.DefaultTLSPort, "Port used when the host has none")
	pinCmd.Flags().DurationVar(&pinTimeout, flags.FlagTimeout, 5*time.Second, "Handshake timeout")
}
