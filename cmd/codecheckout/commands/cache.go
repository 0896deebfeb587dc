package commands

import (
	"github.com/spf13/cobra"

	v1 "codecheckout/pkg/contracts/api/v1"
)

func (c *CLI) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached validation decisions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached validation decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withClient(cmd.Context(), func(client Client) error {
				client.ClearCache(cmd.Context())
				return printJSON(cmd, v1.CacheClearResponse{
					Cleared: true,
					Backend: string(client.CacheBackend()),
				})
			})
		},
	})

	return cmd
}
