package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "storyreel <reddit-url>",
		Short:        "Turn a Reddit story into a narrated vertical video",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	// Visible flags
	root.Flags().String("out", "out", "Output directory")
	root.Flags().String("background", "background_video.mp4", "Background video looped under the narration")
	root.Flags().Bool("no-rewrite", false, "Skip the LLM rewrite and only strip markdown")
	root.Flags().Bool("no-subtitles", false, "Do not add subtitles")
	root.Flags().Bool("report", false, "Also write report.xlsx with per-chunk job details")

	// Hidden tuning flags (internal)
	root.Flags().Int("concurrency", 3, "Max jobs in flight per stage")
	root.Flags().Duration("chunk-duration", 0, "Media chunk length when a video is split (default from env or 5m)")
	_ = root.Flags().MarkHidden("concurrency")
	_ = root.Flags().MarkHidden("chunk-duration")

	return root
}
