package commands

import (
	"github.com/spf13/cobra"

	"codecheckout/pkg/codecheckout"
)

func (c *CLI) newCheckoutCmd() *cobra.Command {
	var p codecheckout.CheckoutParams

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Generate a checkout link and the license key it activates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withClient(cmd.Context(), func(client Client) error {
				session, err := client.GenerateCheckoutURL(cmd.Context(), p)
				if err != nil {
					return err
				}
				return printJSON(cmd, session)
			})
		},
	}

	cmd.Flags().StringVar(&p.LicenseKey, "license-key", "", "License key to activate (generated when empty)")
	cmd.Flags().StringVar(&p.SuccessURL, "success-url", "", "Redirect after a completed purchase")
	cmd.Flags().StringVar(&p.CancelURL, "cancel-url", "", "Redirect after an abandoned purchase")
	cmd.Flags().BoolVar(&p.TestMode, "test-mode", false, "Create a test-mode checkout session")

	return cmd
}
