package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bnema/imagehub/internal/boundaries/in"
)

func newRemoteCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Query the registry directly",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "repos",
		Short: "List registry repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, svc in.CatalogService) (any, error) {
				return svc.ListRemoteRepositories(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "tags <name>",
		Short: "List the tags of a registry repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc in.CatalogService) (any, error) {
				return svc.ListRemoteTags(ctx, args[0])
			})
		},
	})

	return cmd
}
