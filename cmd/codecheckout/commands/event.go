package commands

import (
	"github.com/spf13/cobra"

	"codecheckout/pkg/codecheckout"
)

func (c *CLI) newEventCmd() *cobra.Command {
	var licenseKey string

	cmd := &cobra.Command{
		Use:   "event <command-id>",
		Short: "Record an analytics event for a command invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(cmd.Context(), func(client Client) error {
				resp := client.LogEvent(cmd.Context(), codecheckout.Event{
					CommandID:  args[0],
					LicenseKey: licenseKey,
				})
				return printJSON(cmd, resp)
			})
		},
	}

	cmd.Flags().StringVar(&licenseKey, "license-key", "", "License key to attribute the event to")

	return cmd
}
