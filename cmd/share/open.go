package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"secret.link/internal/share"
)

func newOpenCmd(g *globalOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "open <link>",
		Short: "Fetch and decrypt a secret link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := share.ParseReference(args[0])
			if err != nil {
				return err
			}
			text, err := share.New(g.client()).Open(cmd.Context(), ref, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password protecting the secret")
	return cmd
}
