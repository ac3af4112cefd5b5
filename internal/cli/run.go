package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/citytrain/internal/app"
	"github.com/roach88/citytrain/internal/feed"
	"github.com/roach88/citytrain/internal/pipeline"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Composition     string
	CompositionFile string
	Output          string
}

type runReflection struct {
	Params map[string]string        `json:"params"`
	Funcs  []pipeline.FuncInterface `json:"funcs"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <url|path>",
		Short: "Run a composition over one feed",
		Long: `Fetch the feed at a URL or local path, fold it through the
enhancement composition and write the enriched JSON Feed, with the
resolved composition and any per-step errors under "_reflect".

Example:
  citytrain run https://example.com/feed.json --composition 'hash|addVoice(voice=Joanna)'
  citytrain run ./feed.json --composition-file steps.yaml -o out.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Composition, "composition", "c", "", "pipe-separated steps, e.g. 'hash|limit(n=5)' (default hash)")
	cmd.Flags().StringVar(&opts.CompositionFile, "composition-file", "", "YAML file listing the steps")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the feed to this file instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("composition", "composition-file")

	return cmd
}

func (o *RunOptions) funcs() ([]pipeline.FuncInterface, error) {
	if o.CompositionFile != "" {
		return pipeline.LoadCompositionFile(o.CompositionFile)
	}
	return pipeline.ParseComposition(o.Composition)
}

func runPipeline(opts *RunOptions, src string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	funcs, err := opts.funcs()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid composition", err)
	}

	a, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out.VerboseLog("running %s over %s", pipeline.FormatComposition(funcs), src)
	result, err := a.Enhance(cmd.Context(), src, funcs)
	if err != nil {
		if app.IsFetchError(err) {
			return WrapExitError(ExitCommandError, "failed to fetch feed", err)
		}
		return WrapExitError(ExitFailure, "pipeline failed", err)
	}

	for i, fi := range funcs {
		for _, msg := range fi.Errors {
			out.VerboseLog("step %d (%s): %s", i, fi.FName, msg)
		}
	}

	var buf bytes.Buffer
	reflection := runReflection{
		Params: map[string]string{"composition": pipeline.FormatComposition(funcs), "url": src},
		Funcs:  funcs,
	}
	if err := feed.Encode(&buf, result, reflection); err != nil {
		return WrapExitError(ExitFailure, "failed to encode feed", err)
	}

	if opts.Output == "" {
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(opts.Output, buf.Bytes(), 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	out.VerboseLog("wrote %s (%d items)", opts.Output, len(result.Items))
	if opts.Format == "json" {
		return out.Success(map[string]any{"output": opts.Output, "items": len(result.Items)})
	}
	return out.Success(fmt.Sprintf("wrote %d items to %s", len(result.Items), opts.Output))
}
