package engine

import (
	"fmt"
	"strings"

	"batch-disburser/internal/domain"
)

// FormatReport renders a BatchResult as the plain-text email delivered
// to operators: one block per recipient plus a trailing summary.
func FormatReport(result *domain.BatchResult) (subject, body string) {
	subject = fmt.Sprintf("Batch %s execution report: %s", result.Name, result.Overall)

	var b strings.Builder
	fmt.Fprintf(&b, "Batch: %s (%s)\n", result.Name, result.BatchID)
	fmt.Fprintf(&b, "Started: %s\n", result.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Finished: %s\n\n", result.FinishedAt.Format("2006-01-02 15:04:05 MST"))

	if result.FatalError != "" {
		fmt.Fprintf(&b, "FATAL: %s\n\n", result.FatalError)
	}

	for i, item := range result.Items {
		fmt.Fprintf(&b, "%d. %s", i+1, item.Recipient.Address)
		if item.Recipient.Amount != "" {
			fmt.Fprintf(&b, " (%s)", item.Recipient.Amount)
		}
		fmt.Fprintf(&b, "\n   status: %s\n", item.Status)
		if item.Detail != "" {
			fmt.Fprintf(&b, "   detail: %s\n", item.Detail)
		}
		b.WriteString("\n")
	}

	var ok, failed, limited int
	for _, item := range result.Items {
		switch item.Status {
		case domain.ItemSuccess:
			ok++
		case domain.ItemFailed:
			failed++
		case domain.ItemRateLimited:
			limited++
		}
	}
	fmt.Fprintf(&b, "Summary: %d succeeded, %d failed, %d rate limited. Overall: %s\n",
		ok, failed, limited, result.Overall)

	return subject, b.String()
}
