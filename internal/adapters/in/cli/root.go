// Package cli implements the CLI adapter for imagehub.
// This package provides Cobra commands that delegate to the catalog service.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/zerowrap"
	"github.com/spf13/cobra"

	"github.com/bnema/imagehub/internal/app"
	"github.com/bnema/imagehub/internal/boundaries/in"
	"github.com/bnema/imagehub/internal/domain"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// errFailed signals a non-success envelope that was already printed.
var errFailed = errors.New("operation failed")

// serviceOpener builds the catalog service for one command invocation. The
// returned context carries the configured logger.
type serviceOpener func(ctx context.Context, configPath string) (context.Context, in.CatalogService, func() error, error)

// runner opens the service, runs op and prints its envelope.
type runner func(cmd *cobra.Command, op func(ctx context.Context, svc in.CatalogService) (any, error)) error

// openService loads configuration and wires the full application.
func openService(ctx context.Context, configPath string) (context.Context, in.CatalogService, func() error, error) {
	ctx, a, closeFn, err := openApp(ctx, configPath)
	if err != nil {
		return ctx, nil, nil, err
	}
	return ctx, a.Service, closeFn, nil
}

// openApp wires the application. The returned close function shuts the app
// down and then releases the log file.
func openApp(ctx context.Context, configPath string) (context.Context, *app.App, func() error, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return ctx, nil, nil, err
	}
	logger, closeLog, err := app.NewLogger(cfg)
	if err != nil {
		return ctx, nil, nil, err
	}

	ctx = zerowrap.WithCtx(ctx, logger)
	a, err := app.New(ctx, cfg, Version)
	if err != nil {
		closeLog()
		return ctx, nil, nil, err
	}

	closeFn := func() error {
		err := a.Close(context.WithoutCancel(ctx))
		closeLog()
		return err
	}
	return ctx, a, closeFn, nil
}

// NewRootCmd creates the root command for imagehub CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(openService)
}

func newRootCmd(open serviceOpener) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "imagehub",
		Short: "imagehub - keep an image catalog in step with a registry",
		Long: `imagehub keeps a local catalog of container images consistent with a
remote registry and a local Docker daemon.

It reconciles the catalog against the registry, pushes user images to the hub,
pulls hub images to the daemon and deletes them from the hub.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	run := func(cmd *cobra.Command, op func(ctx context.Context, svc in.CatalogService) (any, error)) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, svc, closeFn, err := open(ctx, configPath)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeFn(); cerr != nil {
				zerowrap.FromCtx(ctx).Warn().Err(cerr).Msg("shutdown")
			}
		}()

		data, err := op(ctx, svc)
		return printResult(cmd.OutOrStdout(), domain.NewResult(data, err))
	}

	rootCmd.AddCommand(newSyncCmd(run))
	rootCmd.AddCommand(newPushCmd(run))
	rootCmd.AddCommand(newPullCmd(run))
	rootCmd.AddCommand(newDeleteCmd(run))
	rootCmd.AddCommand(newGetCmd(run))
	rootCmd.AddCommand(newListCmd(run))
	rootCmd.AddCommand(newExistsCmd(run))
	rootCmd.AddCommand(newInvalidateCmd(run))
	rootCmd.AddCommand(newRemoteCmd(run))
	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func printResult(w io.Writer, result domain.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.OK() {
		return errFailed
	}
	return nil
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "imagehub %s\n", Version)
			fmt.Fprintf(w, "Commit: %s\n", Commit)
			fmt.Fprintf(w, "Build Date: %s\n", BuildDate)
		},
	}
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(version, commit, date string) {
	if version != "" {
		Version = version
	}
	if commit != "" {
		Commit = commit
	}
	if date != "" {
		BuildDate = date
	}
}

// Execute runs the CLI and returns the process exit status.
func Execute(ctx context.Context) int {
	return execute(ctx, NewRootCmd(), nil)
}

func execute(ctx context.Context, cmd *cobra.Command, args []string) int {
	if args != nil {
		cmd.SetArgs(args)
	}
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailed) {
			cmd.PrintErrln("Error:", err)
		}
		return 1
	}
	return 0
}
