package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-render/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "heimdex-render",
	Short: "Render trimmed, reframed and captioned exports with ffmpeg",
	Long: `heimdex-render turns a source recording into a finished MP4.

It removes excluded time ranges, re-times word captions to the shortened
timeline, crops to the chosen aspect ratio and burns the captions in.

  heimdex-render serve                     run the local HTTP service
  heimdex-render export --request req.json render one export and exit`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       config.Version,
}

func main() {
	rootCmd.AddCommand(serveCmd, exportCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
