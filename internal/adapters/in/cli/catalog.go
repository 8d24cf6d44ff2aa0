package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bnema/imagehub/internal/boundaries/in"
)

func newSyncCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the catalog with the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, svc in.CatalogService) (any, error) {
				return svc.Sync(ctx)
			})
		},
	}
}

func newPushCmd(run runner) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "push <local-image-id>",
		Short: "Push a user-owned local image to the hub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc in.CatalogService) (any, error) {
				return svc.PushToHub(ctx, args[0], userID)
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "ID of the requesting user")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newPullCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <catalog-id>",
		Short: "Pull a hub image onto the local daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc in.CatalogService) (any, error) {
				return svc.PullFromHub(ctx, args[0])
			})
		},
	}
}

func newDeleteCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <catalog-id>",
		Short: "Delete an image from the hub and the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc in.CatalogService) (any, error) {
				return nil, svc.DeleteFromHub(ctx, args[0])
			})
		},
	}
}

func newGetCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "get <catalog-id>",
		Short: "Show one catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc in.CatalogService) (any, error) {
				return svc.GetByID(ctx, args[0])
			})
		},
	}
}

func newListCmd(run runner) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		Long:  `List the whole catalog, or only the entries of one repository name with --name.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, svc in.CatalogService) (any, error) {
				if name != "" {
					return svc.ListByName(ctx, name)
				}
				return svc.ListCatalog(ctx)
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Repository name, e.g. alice/app")

	return cmd
}

func newExistsCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <full-name>",
		Short: "Check whether a coordinate is in the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc in.CatalogService) (any, error) {
				return svc.HasExist(ctx, args[0])
			})
		},
	}
}

func newInvalidateCmd(run runner) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "invalidate [catalog-id]",
		Short: "Drop cached catalog reads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return run(cmd, func(ctx context.Context, svc in.CatalogService) (any, error) {
				svc.Invalidate(ctx, id, name)
				return nil, nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Repository name whose cached list to drop")

	return cmd
}
