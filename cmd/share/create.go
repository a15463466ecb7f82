package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"secret.link/internal/share"
)

func newCreateCmd(g *globalOptions) *cobra.Command {
	var opts share.Options

	cmd := &cobra.Command{
		Use:   "create [text]",
		Short: "Encrypt text and print a secret link",
		Long:  `Encrypts the given text, or standard input when no text is given, and stores the ciphertext on the server.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			if opts.StoreKey && g.owner == "" {
				return errors.New("--store-key needs --owner")
			}
			opts.OwnerID = g.owner

			ref, err := share.New(g.client()).Create(cmd.Context(), text, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ref.URL(g.server))
			fmt.Fprintln(cmd.ErrOrStderr(), color.GreenString("✓")+" Created "+color.YellowString(ref.Slug)+
				", expires "+ref.ExpiresAt.Local().Format(time.RFC1123))
			if opts.StoreKey {
				fmt.Fprintln(cmd.ErrOrStderr(), color.CyanString("→")+" The key is held by the server; run "+
					color.YellowString("share list --owner "+g.owner)+" to rebuild the full link")
			}
			if opts.OneTime {
				fmt.Fprintln(cmd.ErrOrStderr(), color.CyanString("→")+" The link works once")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "how long the link stays valid")
	cmd.Flags().BoolVar(&opts.OneTime, "one-time", false, "destroy the secret after the first read")
	cmd.Flags().StringVar(&opts.Password, "password", "", "require a password before reading")
	cmd.Flags().BoolVar(&opts.StoreKey, "store-key", false, "keep the key on the server so the owner can list it")
	return cmd
}

func readText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return "", errors.New("nothing to share")
	}
	return text, nil
}
