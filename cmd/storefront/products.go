package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/georgemunganga/printa-storefront/internal/kit/httpx"
	"github.com/georgemunganga/printa-storefront/internal/modules/catalog"
	"github.com/spf13/cobra"
)

func productsCmd(a *app) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the products that can be put in a cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := httpx.NewClient(a.cfg.API.BaseURL, a.cfg.API.Timeout, nil)
			products, err := catalog.NewService(catalog.NewHTTPRepository(client)).ListProducts(cmd.Context(), category, true)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SKU\tNAME\tCATEGORY\tPRICE")
			for _, p := range products {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\n", p.SKU, p.Name, p.Category, p.Currency, p.Price.StringFixed(2))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only list products of this category")
	return cmd
}
