package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/zerowrap"
	"github.com/spf13/cobra"
)

// newServeCmd creates the serve command.
func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Synchronize the catalog periodically",
		Long:  `Run a sync immediately and then every sync.interval until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctx, a, closeFn, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := closeFn(); cerr != nil {
					zerowrap.FromCtx(ctx).Warn().Err(cerr).Msg("shutdown")
				}
			}()

			return a.Serve(ctx)
		},
	}
}
