package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
	"github.com/jupyterhub/binderhub-deployer/pkg/registry"
)

func Execute(ctx context.Context) error {
	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "deployer",
		Short:             "Publish the Helm chart from CI using an encrypted deploy key",
		DisableAutoGenTag: true,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			registry.ConfigureLogging(logging.LoggerFromContext(cmd.Context()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newEncryptCommand())
	cmd.AddCommand(newKeygenCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}
