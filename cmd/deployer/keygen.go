package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jupyterhub/binderhub-deployer/internal/io/fs"
	"github.com/jupyterhub/binderhub-deployer/pkg/deploykey"
	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
)

const flagComment = "comment"

func newKeygenCommand() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "keygen <path>",
		Short: "Generate a new deploy key",
		Long: "Generate an ed25519 deploy key at <path> and its public half at " +
			"<path>.pub. The public key is printed so it can be added to the " +
			"repository's deploy keys.",
		DisableAutoGenTag: true,
		SilenceErrors:     true,
		SilenceUsage:      true,
		Args:              cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(cmd, args[0], comment)
		},
	}
	cmd.Flags().StringVarP(&comment, flagComment, "C", "", "key comment (default travis-<name>)")
	return cmd
}

func runKeygen(cmd *cobra.Command, path, comment string) error {
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing file %q", path)
	}
	if comment == "" {
		comment = "travis-" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	private, authorized, err := deploykey.GenerateDeployKey(comment)
	if err != nil {
		return err
	}
	if err = fs.WriteFileAtomic(path, private, 0o600); err != nil {
		return fmt.Errorf("error writing private key: %w", err)
	}
	if err = fs.WriteFileAtomic(path+".pub", authorized, 0o644); err != nil {
		return fmt.Errorf("error writing public key: %w", err)
	}
	logging.LoggerFromContext(cmd.Context()).Info(
		"generated deploy key",
		"path", path,
		"comment", comment,
	)
	_, err = cmd.OutOrStdout().Write(authorized)
	return err
}
