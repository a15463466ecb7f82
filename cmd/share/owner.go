package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"secret.link/internal/models"
)

var errNoOwner = errors.New("--owner is required")

func newListCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List secrets created by the owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.owner == "" {
				return errNoOwner
			}
			list, err := g.client().List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), color.CyanString("→")+" No secrets")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tSTATUS\tONE-TIME\tEXPIRES\tKEY")
			for _, s := range list {
				key := "-"
				if s.EncryptionKey != "" {
					key = s.EncryptionKey
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
					s.Slug, statusLabel(s.Status), s.OneTime, s.ExpiresAt.Local().Format(time.RFC3339), key)
			}
			return w.Flush()
		},
	}
}

func newDeleteCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <slug>",
		Short: "Delete a secret owned by the owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.owner == "" {
				return errNoOwner
			}
			if err := g.client().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), color.GreenString("✓")+" Deleted "+color.YellowString(args[0]))
			return nil
		},
	}
}

func statusLabel(s models.State) string {
	switch s {
	case models.StateActive:
		return color.GreenString(string(s))
	case models.StateConsumed:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}
