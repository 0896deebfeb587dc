package commands

import (
	"github.com/spf13/cobra"

	"codecheckout/pkg/codecheckout"
)

func (c *CLI) newValidateCmd() *cobra.Command {
	var (
		force      bool
		cacheHours float64
		machineID  string
	)

	cmd := &cobra.Command{
		Use:   "validate [license-key]",
		Short: "Validate a license key, serving cached decisions when fresh",
		Long: "Validate a license key. Without an argument the last key that " +
			"validated successfully for this software id is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := codecheckout.ValidateRequest{
				MachineID:             machineID,
				ForceOnlineValidation: force,
				CacheDurationInHours:  cacheHours,
			}
			if len(args) == 1 {
				req.LicenseKey = args[0]
			}

			var res codecheckout.ValidateResult
			err := c.withClient(cmd.Context(), func(client Client) error {
				res = client.Validate(cmd.Context(), req)
				return printJSON(cmd, res)
			})
			if err != nil {
				return err
			}
			if !res.IsValid {
				return ErrLicenseInvalid
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the cache and ask the authority")
	cmd.Flags().Float64Var(&cacheHours, "cache-hours", 0, "Freshness window in hours (0 uses the configured value)")
	cmd.Flags().StringVar(&machineID, "machine-id", "", "Override the detected machine id")

	return cmd
}
