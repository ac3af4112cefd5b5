package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/citytrain/internal/store"
)

// NewBreadcrumbsCommand creates the breadcrumbs command group.
func NewBreadcrumbsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breadcrumbs",
		Short: "Inspect cached synthesis job records",
		Long: `Read the breadcrumbs addVoice keeps in the configured store, under
the configured voice table and prefix.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "get <key>",
		Short:         "Show the breadcrumb for a content key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getBreadcrumb(rootOpts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "ls",
		Short:         "List content keys with a breadcrumb",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listBreadcrumbs(rootOpts, cmd)
		},
	})

	return cmd
}

func getBreadcrumb(opts *RootOptions, key string, cmd *cobra.Command) error {
	a, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.Breadcrumb(cmd.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		_ = opts.formatter(cmd).Error(CodeNotFound, "no breadcrumb for "+key, nil)
		return WrapExitError(ExitFailure, "breadcrumb not found", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read breadcrumb", err)
	}
	return opts.formatter(cmd).Success(b)
}

func listBreadcrumbs(opts *RootOptions, cmd *cobra.Command) error {
	a, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	keys, err := a.BreadcrumbKeys(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list breadcrumbs", err)
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(map[string]any{"keys": keys, "count": len(keys)})
	}
	if len(keys) == 0 {
		out.VerboseLog("no breadcrumbs")
		return nil
	}
	return out.Success(strings.Join(keys, "\n"))
}
