package main

import (
	"github.com/spf13/cobra"

	"github.com/jupyterhub/binderhub-deployer/pkg/deploy"
	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
	versionpkg "github.com/jupyterhub/binderhub-deployer/pkg/x/version"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [cipher-key-hex cipher-iv-hex]",
		Short: "Log in, decrypt the deploy key and invoke the chart build",
		Long: "Log in to the container registry, decrypt the deploy key, " +
			"point git at it and invoke the chart build with --push and " +
			"--publish-chart. The cipher key and IV may be given as arguments " +
			"or through DEPLOY_KEY_CIPHER_KEY and DEPLOY_KEY_CIPHER_IV.",
		DisableAutoGenTag: true,
		SilenceErrors:     true,
		SilenceUsage:      true,
		Args:              cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := deploy.ConfigFromEnv()
			if err != nil {
				return err
			}
			params, err := cfg.CipherParams(args)
			if err != nil {
				return err
			}
			invoker, err := deploy.NewInvoker(cfg, params)
			if err != nil {
				return err
			}

			version := versionpkg.GetVersion()
			logging.LoggerFromContext(ctx).Debug(
				"deployer",
				"version", version.Version,
				"commit", version.GitCommit,
				"steps", invoker.Steps(),
			)
			return invoker.Run(ctx)
		},
	}
}
