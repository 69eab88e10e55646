package cli

import (
	"github.com/spf13/cobra"

	"media-optimizer/internal/logging"
)

// globalOptions holds flags shared by every command.
type globalOptions struct {
	verbose  bool
	cacheDir string
}

// NewRootCommand builds the command tree. Each call returns fresh flag
// state so tests can execute commands independently.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "media-optimizer",
		Short: "Post-build image optimization for static sites",
		Long: `media-optimizer rewrites marked-up images in a generated site into
responsive WebP <picture> sources and recompresses the originals in place.

Outputs are cached across builds, so unchanged images are copied instead of
re-encoded.

Example usage:
  media-optimizer optimize ./public            # optimize a built site
  media-optimizer optimize ./public --dry-run  # validate and list the plan
  media-optimizer cache stats                  # show cache usage
  media-optimizer cache clear                  # drop every cached output`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				logging.SetLevel(logging.LevelDebug)
			}
		},
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&opts.cacheDir, "cache-dir", "", "artifact cache directory (default: $MEDIA_OPTIMIZER_CACHE_DIR or the user cache dir)")

	root.AddCommand(
		newOptimizeCommand(opts),
		newCacheCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}
