package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent scans from the local database",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOut, _ := cmd.Flags().GetBool("json")

		stack, err := newScanStack(dbPath, logger.Desugar())
		if err != nil {
			return err
		}
		defer func() {
			if err := stack.Close(); err != nil {
				logger.Warnw("closing scan database", "error", err)
			}
		}()

		records, err := stack.Service.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}

		if len(records) == 0 {
			fmt.Println("No scans recorded yet.")
			return nil
		}
		for _, rec := range records {
			fmt.Printf("%s  %-40s  grade %s  risk %3d (%s)  %s\n",
				rec.CreatedAt.Format("2006-01-02 15:04"),
				rec.URL,
				formatGradeWithColor(rec.Grade),
				rec.RiskScore,
				formatRiskLevelWithColor(rec.RiskLevel),
				rec.ID)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 10, "Maximum number of scans to list")
	historyCmd.Flags().Bool("json", false, "Print scan records as JSON")
	rootCmd.AddCommand(historyCmd)
}
