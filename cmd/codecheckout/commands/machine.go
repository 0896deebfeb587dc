package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newMachineIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "machine-id",
		Short: "Print the identifier this machine reports to the authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withClient(cmd.Context(), func(client Client) error {
				id, err := client.MachineID(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
				return err
			})
		},
	}
}
