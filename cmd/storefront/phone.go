package main

import (
	"fmt"

	"github.com/georgemunganga/printa-storefront/internal/modules/payment"
	"github.com/spf13/cobra"
)

func phoneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "phone [number]",
		Short: "Normalise and validate a mobile-money number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, ok := payment.PlanFor(a.cfg.Phone.CountryCode)
			if !ok {
				return fmt.Errorf("no numbering plan for country code %q", a.cfg.Phone.CountryCode)
			}
			canonical := plan.Normalize(args[0])
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Input:     %s\n", args[0])
			fmt.Fprintf(out, "Canonical: %s\n", canonical)
			if !plan.Validate(canonical) {
				fmt.Fprintln(out, "Valid:     no")
				return fmt.Errorf("%q is not a valid mobile money number", args[0])
			}
			fmt.Fprintln(out, "Valid:     yes")
			if carrier := payment.Carrier(canonical); carrier != "" {
				fmt.Fprintf(out, "Carrier:   %s\n", carrier)
			}
			return nil
		},
	}
}
