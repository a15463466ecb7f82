// Command share creates and opens secret links from the terminal.
// Text is encrypted locally; the server only ever sees ciphertext.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"secret.link/internal/client"
)

const defaultServer = "http://localhost:8080"

type globalOptions struct {
	server      string
	owner       string
	ownerHeader string
}

func (g *globalOptions) client() *client.Client {
	var opts []client.Option
	if g.owner != "" {
		opts = append(opts, client.WithOwner(g.ownerHeader, g.owner))
	}
	return client.New(g.server, opts...)
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "share",
		Short: "Share secrets through one-time or time-limited links",
		Long: `share encrypts text on this machine and stores only the ciphertext on a
secret link server. The decryption key travels in the link fragment.

Usage:
  share create "text" --ttl 1h --one-time
  share open <link>
  share list --owner <id>
  share delete <slug> --owner <id>`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serverDefault := os.Getenv("SHARE_SERVER")
	if serverDefault == "" {
		serverDefault = defaultServer
	}
	root.PersistentFlags().StringVar(&g.server, "server", serverDefault, "secret link server URL")
	root.PersistentFlags().StringVar(&g.owner, "owner", os.Getenv("SHARE_OWNER"), "owner identity sent with requests")
	root.PersistentFlags().StringVar(&g.ownerHeader, "owner-header", "X-User-ID", "header carrying the owner identity")

	root.AddCommand(newCreateCmd(g))
	root.AddCommand(newOpenCmd(g))
	root.AddCommand(newListCmd(g))
	root.AddCommand(newDeleteCmd(g))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+err.Error())
		os.Exit(1)
	}
}
