package cli

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration an assessment would run with: built-in defaults,
overlaid by the config file. The output is a valid config file.

Examples:
  vaultguard config > vaultguard.yaml
  vaultguard config --config /etc/vaultguard.yaml
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := loadConfig(cmd, cfg)
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		data, err := c.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
