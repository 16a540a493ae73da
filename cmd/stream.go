// -- cmd/stream.go --
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/morphkit/internal/observability"
)

// newStreamCmd creates the `stream` command: render one page and apply
// stream bodies to it.
func newStreamCmd() *cobra.Command {
	opts := renderOptions{}
	streamCmd := &cobra.Command{
		Use:   "stream <page> <stream-file>...",
		Short: "Applies turbo-stream bodies to a page and prints the result",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			opts.Pages = args[:1]
			opts.StreamFiles = args[1:]
			return runRender(ctx, cfg, observability.GetLogger(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	addRenderFlags(streamCmd, &opts)
	return streamCmd
}
