package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/webposture/internal/progress"
	"github.com/khanhnv2901/webposture/internal/safety"
	"github.com/khanhnv2901/webposture/internal/scan"
	apperrors "github.com/khanhnv2901/webposture/internal/shared/errors"
)

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Run a passive security posture scan against one website",
	Long: `Run the full passive scan pipeline (HTTP headers, SSL/TLS, DNS,
technology fingerprinting) against a single website, then print the
aggregated risk grade, OWASP assessment, and recommendations.

You must have explicit permission to scan the target. Run
"webposture disclaimer" to review the terms the attestation flags confirm.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmPermission, _ := cmd.Flags().GetBool("confirm-permission")
		confirmOwnership, _ := cmd.Flags().GetBool("confirm-ownership")
		acceptLiability, _ := cmd.Flags().GetBool("accept-liability")
		jsonOut, _ := cmd.Flags().GetBool("json")
		showProgress, _ := cmd.Flags().GetBool("progress")

		stack, err := newScanStack(dbPath, logger.Desugar())
		if err != nil {
			return err
		}
		defer func() {
			if err := stack.Close(); err != nil {
				logger.Warnw("closing scan database", "error", err)
			}
		}()

		// Cancel the in-flight scan on Ctrl+C instead of killing the
		// process mid-probe.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var printer *progressPrinter
		req := scan.Request{
			URL:      args[0],
			ClientIP: "cli",
			Attestations: safety.Attestations{
				Acknowledged:     confirmPermission,
				OwnerConfirmed:   confirmOwnership,
				AcceptsLiability: acceptLiability,
			},
		}
		if showProgress && !jsonOut {
			req.OnSession = func(id string) {
				printer = newProgressPrinter(func() (progress.Snapshot, error) {
					return stack.Service.Progress(id)
				})
				printer.Start()
			}
		}

		report, err := stack.Service.Run(ctx, req)
		if printer != nil {
			printer.Stop()
		}
		if err != nil {
			return explainScanError(err)
		}

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(report)
		return nil
	},
}

func init() {
	scanCmd.Flags().Bool("confirm-permission", false, "Confirm you have explicit permission to scan this website")
	scanCmd.Flags().Bool("confirm-ownership", false, "Confirm you own this website or act for its owner")
	scanCmd.Flags().Bool("accept-liability", false, "Accept full legal responsibility for this scan")
	scanCmd.Flags().Bool("json", false, "Print the full scan report as JSON")
	scanCmd.Flags().Bool("progress", true, "Show a live progress line while scanning")
	rootCmd.AddCommand(scanCmd)
}

// explainScanError turns gate rejections into actionable CLI messages.
func explainScanError(err error) error {
	var rej *safety.Rejection
	if errors.As(err, &rej) {
		switch rej.Kind {
		case safety.RejectRateLimit:
			return fmt.Errorf("%s rate limited: retry in %s", colorWarn("✗"), rej.RetryAfter.Round(time.Second))
		case safety.RejectPermission:
			return fmt.Errorf("%s %v\nRun \"webposture disclaimer\" and pass --confirm-permission --confirm-ownership --accept-liability", colorError("✗"), rej.Err)
		default:
			return fmt.Errorf("%s %v", colorError("✗"), rej.Err)
		}
	}
	if errors.Is(err, apperrors.ErrScanCancelled) {
		return fmt.Errorf("%s scan cancelled", colorWarn("✗"))
	}
	return err
}

func printReport(r *scan.Report) {
	fmt.Printf("\nScan report for %s\n", colorInfo(r.URL))
	fmt.Printf("  Scan ID:     %s\n", r.ScanID)
	fmt.Printf("  Duration:    %dms\n", r.DurationMS)
	fmt.Printf("  Risk score:  %d (%s)\n", r.RiskScore, formatRiskLevelWithColor(r.RiskLevel))
	fmt.Printf("  Grade:       %s  (HTTP %s, SSL %s, DNS %s, Tech %s)\n",
		formatGradeWithColor(r.OverallGrade),
		formatGradeWithColor(r.HTTPGrade),
		formatGradeWithColor(r.SSLGrade),
		formatGradeWithColor(r.DNSGrade),
		formatGradeWithColor(r.TechGrade))
	fmt.Printf("  Posture:     %s\n", r.SecurityPosture)
	fmt.Printf("  OWASP:       %d/100 compliant (%d of %d categories)\n",
		r.OWASPScore, r.Compliant, r.Compliant+r.NonCompliant)
	fmt.Printf("  Issues:      %d critical, %d high\n", r.CriticalIssues, r.HighIssues)

	if len(r.TopRisks) > 0 {
		fmt.Println("\nTop risks:")
		for _, tr := range r.TopRisks {
			fmt.Printf("  %d. [%s] %s\n", tr.Rank, tr.Severity, tr.Issue)
		}
	}
	if len(r.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, rec := range r.Recommendations {
			fmt.Printf("  %s %s\n", colorInfo("→"), rec)
		}
	}
}
