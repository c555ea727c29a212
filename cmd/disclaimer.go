package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/webposture/internal/safety"
)

var disclaimerCmd = &cobra.Command{
	Use:   "disclaimer",
	Short: "Show the legal disclaimer and required scan confirmations",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		disc := safety.LegalDisclaimer()

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(disc)
		}

		fmt.Printf("%s\n", colorWarn(disc.Title))
		fmt.Printf("%s %s\n\n", colorError("!"), disc.Warning)
		fmt.Println("Terms:")
		for _, term := range disc.Terms {
			fmt.Printf("  %s %s\n", colorInfo("→"), term)
		}
		fmt.Println("\nRequired confirmations:")
		for _, c := range disc.RequiredConfirmations {
			fmt.Printf("  [ ] %s\n", c.Text)
		}
		fmt.Printf("\nRate limiting: %s\n", disc.RateLimiting)
		fmt.Printf("Scope:         %s\n", disc.Scope)
		fmt.Printf("Methods:       %s\n", disc.Methods)
		return nil
	},
}

func init() {
	disclaimerCmd.Flags().Bool("json", false, "Print the disclaimer as JSON")
	rootCmd.AddCommand(disclaimerCmd)
}
