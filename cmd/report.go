package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/spf13/cobra"

	"github.com/khanhnv2901/webposture/internal/scan"
	"github.com/khanhnv2901/webposture/internal/shared/constants"
	apperrors "github.com/khanhnv2901/webposture/internal/shared/errors"
	"github.com/khanhnv2901/webposture/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report <scan-id>",
	Short: "Export a stored scan report (json or pdf)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("output")

		format = strings.ToLower(format)
		if format != "json" && format != "pdf" {
			return fmt.Errorf("invalid format: %s (must be json or pdf)", format)
		}

		stack, err := newScanStack(dbPath, logger.Desugar())
		if err != nil {
			return err
		}
		defer func() {
			if err := stack.Close(); err != nil {
				logger.Warnw("closing scan database", "error", err)
			}
		}()

		rec, err := stack.Service.Details(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, apperrors.ErrScanNotFound) {
				return fmt.Errorf("no stored scan with id %s", args[0])
			}
			return err
		}

		var report scan.Report
		if len(rec.Report) > 0 {
			if err := json.Unmarshal(rec.Report, &report); err != nil {
				return fmt.Errorf("parse stored report %s: %w", rec.ID, err)
			}
		}

		var content []byte
		switch format {
		case "json":
			content, err = json.MarshalIndent(&report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to generate report: %w", err)
			}
		case "pdf":
			content, err = generatePDFReportBytes(rec, &report)
			if err != nil {
				return fmt.Errorf("failed to generate PDF report: %w", err)
			}
		}

		if outPath == "" {
			outPath = fmt.Sprintf("report-%s.%s", rec.ID, format)
		}
		if err := os.WriteFile(outPath, content, constants.DefaultFilePerm); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}

		fmt.Printf("Report generated: %s\n", outPath)
		fmt.Printf("Format: %s\n", format)
		fmt.Printf("Target: %s\n", rec.URL)
		return nil
	},
}

func generatePDFReportBytes(rec store.ScanRecord, report *scan.Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Website Security Posture Report", "", 1, "C", false, 0, "")
	pdf.Ln(5)

	// Metadata section
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Scan ID: %s", rec.ID), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Target: %s", rec.URL), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Scanned: %s", formatReportTimestamp(rec.CreatedAt)), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Duration: %d ms", report.DurationMS), "", 1, "", false, 0, "")
	pdf.Ln(5)

	// Summary section
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Summary", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Overall Grade: %s | Risk Score: %d/100 | Risk Level: %s",
		report.OverallGrade, report.RiskScore, report.RiskLevel), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Security Posture: %s", report.SecurityPosture), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Components: HTTP %s | SSL/TLS %s | DNS %s | Technology %s",
		report.HTTPGrade, report.SSLGrade, report.DNSGrade, report.TechGrade), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Issues: %d critical, %d high",
		report.CriticalIssues, report.HighIssues), "", 1, "", false, 0, "")
	pdf.Ln(5)

	// OWASP compliance
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "OWASP Top 10 Compliance", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Compliance Score: %d/100 | Compliant: %d | Non-Compliant: %d",
		report.OWASPScore, report.Compliant, report.NonCompliant), "", 1, "", false, 0, "")
	if report.OWASP != nil && len(report.OWASP.NonCompliant) > 0 {
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, fmt.Sprintf("Non-compliant categories: %s",
			strings.Join(report.OWASP.NonCompliant, ", ")), "", "", false)
	}
	pdf.Ln(5)

	// Top risks
	if len(report.TopRisks) > 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Top Risks", "", 1, "", false, 0, "")
		for _, tr := range report.TopRisks {
			if pdf.GetY() > 250 {
				pdf.AddPage()
			}
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(0, 5, fmt.Sprintf("%d. [%s] %s", tr.Rank, strings.ToUpper(tr.Severity), tr.Issue), "", 1, "", false, 0, "")
			pdf.SetFont("Arial", "", 8)
			pdf.MultiCell(0, 4, fmt.Sprintf("  Impact: %s", tr.Impact), "", "", false)
			pdf.MultiCell(0, 4, fmt.Sprintf("  Fix: %s", tr.Fix), "", "", false)
		}
		pdf.Ln(3)
	}

	// Component detail: TLS and header findings carry the most context.
	if report.SSLScan != nil {
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "SSL/TLS", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		https := "no"
		if report.SSLScan.HTTPSEnabled {
			https = "yes"
		}
		pdf.CellFormat(0, 5, fmt.Sprintf("HTTPS: %s | Version: %s | Cipher: %s",
			https, report.SSLScan.Version, report.SSLScan.CipherSuite), "", 1, "", false, 0, "")
		if cert := report.SSLScan.Certificate; cert != nil {
			pdf.CellFormat(0, 5, fmt.Sprintf("Certificate: %s (issuer %s, expires in %d days)",
				cert.CommonName, cert.Issuer, cert.DaysUntilExpiry), "", 1, "", false, 0, "")
		}
		for _, issue := range report.SSLScan.Issues {
			pdf.MultiCell(0, 4, fmt.Sprintf("  - %s", issue), "", "", false)
		}
		pdf.Ln(3)
	}
	if report.HTTPScan != nil && len(report.HTTPScan.Missing) > 0 {
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Security Headers", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 5, fmt.Sprintf("Grade: %s | Score: %d", report.HTTPScan.Grade, report.HTTPScan.Score), "", 1, "", false, 0, "")
		pdf.MultiCell(0, 4, fmt.Sprintf("Missing: %s", strings.Join(report.HTTPScan.Missing, ", ")), "", "", false)
		pdf.Ln(3)
	}

	// Recommendations
	if len(report.Recommendations) > 0 {
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Recommendations", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, advice := range report.Recommendations {
			if pdf.GetY() > 270 {
				pdf.AddPage()
			}
			pdf.MultiCell(0, 4, fmt.Sprintf("  - %s", advice), "", "", false)
		}
	}

	// Partial failures
	if len(report.Errors) > 0 {
		pdf.Ln(3)
		pdf.SetFont("Arial", "I", 9)
		for _, e := range report.Errors {
			pdf.MultiCell(0, 4, fmt.Sprintf("Component error: %s", e), "", "", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func formatReportTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

func init() {
	reportCmd.Flags().String("format", "pdf", "Output format: json|pdf")
	reportCmd.Flags().String("output", "", "Output file path (defaults to report-<scan-id>.<format>)")
	rootCmd.AddCommand(reportCmd)
}
