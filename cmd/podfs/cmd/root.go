// Package cmd implements the podfs command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/podfs/podfs-go/internal/config"
	"github.com/podfs/podfs-go/internal/logging"
	"github.com/podfs/podfs-go/pkg/podclient"
)

// app carries the state shared by all subcommands once flags are parsed.
type app struct {
	v       *viper.Viper
	cfgFile string

	config *config.Config
	logger *zap.Logger
}

// Execute runs the podfs command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the podfs command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "podfs",
		Short: "Work with files on a Solid pod",
		Long: `podfs reads and writes newline-delimited token files on a Solid pod
(a Linked Data Platform server) over plain HTTP.

It can also run a sandbox pod backed by memory, PostgreSQL, MongoDB or S3,
and mount a pod as a filesystem.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	flags.String("pod-url", "", "base URL of the pod")
	flags.String("log-level", "info", "log level: debug, info, warn, error or none")
	_ = a.v.BindPFlag(config.KeyPodURL, flags.Lookup("pod-url"))
	_ = a.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))

	root.AddCommand(
		newContainerCommand(a),
		newPublishCommand(a),
		newReadCommand(a),
		newUpdateCommand(a),
		newListCommand(a),
		newRemoveCommand(a),
		newServeCommand(a),
		newMountCommand(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.GetLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.config = cfg
	a.logger = logger
	return nil
}

// client returns a typed client for the configured pod.
func (a *app) client() (*podclient.Client, error) {
	url, err := a.config.RequirePodURL()
	if err != nil {
		return nil, err
	}
	return podclient.NewClient(url, podclient.WithLogger(a.logger))
}
