package main

import (
	"fmt"

	"github.com/spf13/cobra"

	libIO "github.com/jupyterhub/binderhub-deployer/internal/io"
	"github.com/jupyterhub/binderhub-deployer/internal/io/fs"
	"github.com/jupyterhub/binderhub-deployer/pkg/deploykey"
	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
)

const (
	flagOut    = "out"
	flagKey    = "key"
	flagIV     = "iv"
	flagVerify = "verify"

	maxDeployKeySize = 1 << 20
)

type encryptOptions struct {
	out    string
	keyHex string
	ivHex  string
	verify bool
}

func newEncryptCommand() *cobra.Command {
	opts := &encryptOptions{}
	cmd := &cobra.Command{
		Use:   "encrypt <deploy-key>",
		Short: "Encrypt a deploy key so it can be committed",
		Long: "Encrypt a deploy key with AES-256-CBC. Unless --key and --iv " +
			"are given, a fresh key and IV are generated and printed in a " +
			"form that can be stored as CI secrets.",
		DisableAutoGenTag: true,
		SilenceErrors:     true,
		SilenceUsage:      true,
		Args:              cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.out, flagOut, "o", "", "output path (default <deploy-key>.enc)")
	cmd.Flags().StringVar(&opts.keyHex, flagKey, "", "hex encoded 256-bit cipher key")
	cmd.Flags().StringVar(&opts.ivHex, flagIV, "", "hex encoded 128-bit initialization vector")
	cmd.Flags().BoolVar(&opts.verify, flagVerify, true, "require the input to be an unencrypted SSH private key")
	cmd.MarkFlagsRequiredTogether(flagKey, flagIV)
	return cmd
}

func (o *encryptOptions) run(cmd *cobra.Command, in string) error {
	logger := logging.LoggerFromContext(cmd.Context())

	plaintext, err := libIO.LimitReadFile(in, maxDeployKeySize)
	if err != nil {
		return fmt.Errorf("error reading deploy key: %w", err)
	}
	if o.verify {
		if err = deploykey.Verify(plaintext); err != nil {
			return err
		}
	}

	var params deploykey.CipherParams
	generated := o.keyHex == ""
	if generated {
		if params, err = deploykey.GenerateCipherParams(); err != nil {
			return err
		}
	} else if params, err = deploykey.ParseCipherParams(o.keyHex, o.ivHex); err != nil {
		return err
	}

	ciphertext, err := deploykey.Encrypt(plaintext, params)
	if err != nil {
		return err
	}
	out := o.out
	if out == "" {
		out = in + ".enc"
	}
	if err = fs.WriteFileAtomic(out, ciphertext, 0o644); err != nil {
		return fmt.Errorf("error writing encrypted deploy key: %w", err)
	}
	logger.Info("encrypted deploy key", "in", in, "out", out)

	if generated {
		_, err = fmt.Fprintf(
			cmd.OutOrStdout(),
			"DEPLOY_KEY_CIPHER_KEY=%s\nDEPLOY_KEY_CIPHER_IV=%s\n",
			params.KeyHex(),
			params.IVHex(),
		)
	}
	return err
}
