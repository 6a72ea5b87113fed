package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/podfs/podfs-go/internal/config"
	"github.com/podfs/podfs-go/internal/fuse"
	"github.com/podfs/podfs-go/internal/podserver"
	"github.com/podfs/podfs-go/internal/storage"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a sandbox pod",
		Long: `Run a minimal Linked Data Platform server. Data is kept in the
storage backend selected by storage.type: memory, postgres, mongodb or s3.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			bc, err := a.config.BackendConfig()
			if err != nil {
				return err
			}
			backend, err := storage.NewBackend(bc)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := backend.Close(); cerr != nil {
					err = multierror.Append(err, cerr)
				}
			}()

			var opts []podserver.Option
			opts = append(opts, podserver.WithLogger(a.logger))
			if a.config.PodURL != "" {
				opts = append(opts, podserver.WithBaseURL(a.config.PodURL))
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a.logger.Info("starting sandbox pod",
				zap.String("addr", a.config.Server.Addr),
				zap.String("storage", string(bc.Type)),
			)
			return podserver.New(backend, opts...).ListenAndServe(ctx, a.config.Server.Addr)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("storage", "memory", "storage backend: memory, postgres, mongodb or s3")
	_ = a.v.BindPFlag(config.KeyServerAddr, flags.Lookup("addr"))
	_ = a.v.BindPFlag(config.KeyStorageType, flags.Lookup("storage"))
	return cmd
}

func newMountCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mount MOUNTPOINT",
		Short: "Mount the pod as a filesystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return fuse.Mount(ctx, args[0], c, a.logger)
		},
	}
}
