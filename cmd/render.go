// -- cmd/render.go --
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/morphkit/internal/config"
	"github.com/xkilldash9x/morphkit/internal/engine"
	"github.com/xkilldash9x/morphkit/internal/network"
	"github.com/xkilldash9x/morphkit/internal/observability"
)

// renderOptions are the per-invocation settings of render and stream.
type renderOptions struct {
	Pages       []string
	Reveal      bool
	StreamFiles []string
	BridgeFile  string
	Format      string
	OutputDir   string
}

// newRenderCmd creates the `render` command.
func newRenderCmd() *cobra.Command {
	opts := renderOptions{}
	renderCmd := &cobra.Command{
		Use:   "render [pages...]",
		Short: "Boots the behaviour layer on pages and prints the settled documents",
		Long: `Each page (a file, an http(s) URL or - for stdin) gets its own document and
event loop. Controllers connect, connect-strategy lazy frames load against
--base-url, and the page settles before it is printed. Streams and bridge
instructions given with --stream and --bridge are applied after the first
settle.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			opts.Pages = args
			return runRender(ctx, cfg, observability.GetLogger(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	addRenderFlags(renderCmd, &opts)
	renderCmd.Flags().StringSliceVar(&opts.StreamFiles, "stream", nil, "stream body file applied to every page after the first settle (repeatable)")
	return renderCmd
}

func addRenderFlags(cmd *cobra.Command, opts *renderOptions) {
	cmd.Flags().BoolVar(&opts.Reveal, "reveal", false, "report every watched element as visible, loading visible-strategy frames")
	cmd.Flags().StringVar(&opts.BridgeFile, "bridge", "", "JSON file of bridge instructions to run after the streams")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", formatHTML, "output format (html or json)")
	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "", "directory for one output file per page (default stdout)")
	cmd.Flags().IntP("concurrency", "j", 0, "number of pages rendered in parallel")
	cmd.Flags().Duration("settle", 0, "time pending widget timers get to fire")
	cmd.Flags().Duration("timeout", 0, "per page timeout")
	cmd.Flags().Float64("rps", 0, "fragment requests per second (0 is unlimited)")
	cmd.Flags().Bool("insecure", false, "skip TLS verification")
}

func runRender(ctx context.Context, cfg config.Interface, logger *zap.Logger, opts renderOptions, stdin io.Reader, stdout io.Writer) error {
	client := network.NewClient(network.ClientConfigFrom(cfg.Network(), logger))
	fetcher, err := network.NewFetcher(cfg.Network(), client, logger)
	if err != nil {
		return fmt.Errorf("failed to create fragment fetcher: %w", err)
	}
	loader := &sourceLoader{client: client, stdin: stdin, logger: logger}

	streams, err := loader.LoadAll(ctx, opts.StreamFiles)
	if err != nil {
		return err
	}
	var bridgeData []byte
	if opts.BridgeFile != "" {
		data, err := loader.Load(ctx, opts.BridgeFile)
		if err != nil {
			return err
		}
		bridgeData = []byte(data)
	}

	sink, err := newOutputSink(opts.Format, opts.OutputDir, stdout)
	if err != nil {
		return err
	}

	jobs := make([]engine.Job, 0, len(opts.Pages))
	for i, ref := range opts.Pages {
		markup, err := loader.Load(ctx, ref)
		if err != nil {
			return err
		}
		job := engine.Job{
			ID:      uuid.NewString(),
			Source:  ref,
			Markup:  markup,
			Reveal:  opts.Reveal,
			Streams: streams,
			Bridge:  bridgeData,
		}
		sink.Name(job.ID, i, ref)
		jobs = append(jobs, job)
	}

	taskEngine, err := engine.NewTaskEngine(cfg, logger, sink, engine.NewPageWorker(cfg, logger, fetcher))
	if err != nil {
		return fmt.Errorf("failed to create task engine: %w", err)
	}

	queue := make(chan engine.Job, len(jobs))
	for _, job := range jobs {
		queue <- job
	}
	close(queue)

	logger.Info("Rendering pages", zap.Int("pages", len(jobs)), zap.Int("streams", len(streams)))
	taskEngine.Start(ctx, queue)
	taskEngine.Stop()

	if err := ctx.Err(); err != nil {
		return err
	}
	if written := sink.Written(); written < len(jobs) {
		return fmt.Errorf("%d of %d pages failed to render", len(jobs)-written, len(jobs))
	}
	if opts.OutputDir != "" {
		logger.Info("Wrote pages", zap.Int("pages", len(jobs)), zap.String("dir", opts.OutputDir))
	}
	return nil
}
