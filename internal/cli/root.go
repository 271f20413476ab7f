package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "momentmcp",
	Short: "MCP tool server for music generation and moment soundtracks",
	Long:  "momentmcp exposes blueprint validation, speech previews, song generation and the moment soundtrack pipeline as MCP tools over stdio or HTTP.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "momentmcp.toml", "config file path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and returns an error; exit code is set by
// the caller.
func Execute() error {
	return rootCmd.Execute()
}
