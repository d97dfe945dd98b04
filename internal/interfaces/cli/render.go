package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"finboard/internal/domain/advisor"
	"finboard/internal/domain/health"
	"finboard/internal/domain/integration"
	"finboard/internal/domain/ledger"
	"finboard/internal/infrastructure/backend"
	"finboard/internal/shared/messages"
)

const timeLayout = "Jan 2 15:04"

// formatMessage renders one conversation entry.
func formatMessage(m advisor.Message) string {
	var sb strings.Builder

	var who string
	switch m.Role {
	case advisor.RoleUser:
		who = color.CyanString("You")
	case advisor.RoleError:
		who = color.RedString("Error")
	default:
		who = color.GreenString("Advisor")
	}
	fmt.Fprintf(&sb, "%s %s\n", who, color.HiBlackString(m.Timestamp.Local().Format(timeLayout)))

	if m.Content.Kind == advisor.Structured && m.Content.Analysis != nil {
		writeAnalysis(&sb, m.Content.Analysis)
	} else {
		fmt.Fprintf(&sb, "  %s\n", indent(m.Content.Text))
	}

	for i, q := range m.Suggestions {
		fmt.Fprintf(&sb, "  %s %s\n", color.HiBlackString("%d.", i+1), q)
	}
	return sb.String()
}

func writeAnalysis(sb *strings.Builder, p *advisor.AnalysisPayload) {
	if p.Summary != "" {
		fmt.Fprintf(sb, "  %s\n", indent(p.Summary))
	}
	if a := p.Analysis; a != nil {
		if len(a.KeyMetrics) > 0 {
			sb.WriteString(color.New(color.Bold).Sprint("  Key metrics\n"))
			for _, km := range a.KeyMetrics {
				if km.Value == "" {
					fmt.Fprintf(sb, "    • %s\n", km.Label)
				} else {
					fmt.Fprintf(sb, "    • %s: %s\n", km.Label, km.Value)
				}
			}
		}
		if len(a.Insights) > 0 {
			sb.WriteString(color.New(color.Bold).Sprint("  Insights\n"))
			for _, in := range a.Insights {
				fmt.Fprintf(sb, "    • %s\n", in)
			}
		}
	}
	if len(p.Recommendations) > 0 {
		sb.WriteString(color.New(color.Bold).Sprint("  Recommendations\n"))
		for _, r := range p.Recommendations {
			line := r.Action
			if r.Priority != "" {
				line = fmt.Sprintf("[%s] %s", priorityColor(r.Priority), line)
			}
			if r.ExpectedImpact != "" {
				line += color.HiBlackString(" (%s)", r.ExpectedImpact)
			}
			fmt.Fprintf(sb, "    • %s\n", line)
		}
	}
	if len(p.ToolsUsed) > 0 {
		fmt.Fprintf(sb, "  %s\n", color.HiBlackString("tools: %s", strings.Join(p.ToolsUsed, ", ")))
	}
}

func priorityColor(p string) string {
	switch strings.ToLower(p) {
	case "high", "1":
		return color.RedString(p)
	case "medium", "2":
		return color.YellowString(p)
	default:
		return color.GreenString(p)
	}
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n  ")
}

// formatHealth renders a poller event, or "" for events not worth a line.
func formatHealth(ev health.Event, msgs *messages.Messages) string {
	switch ev.Kind {
	case health.EventReady:
		return color.GreenString("✓ Connected") + "\n"
	case health.EventDegraded:
		return color.YellowString("⚠ %s", msgs.BackendDegraded.Title) + "\n  " + msgs.BackendDegraded.Body + "\n"
	default:
		return color.HiBlackString(msgs.BackendWaiting.Body, ev.Attempt) + "\n"
	}
}

func formatStatus(s integration.Status) string {
	var sb strings.Builder
	if !s.IsIntegrated {
		sb.WriteString(color.YellowString("No bank connected") + "\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "%s (%d)\n", color.CyanString("Connected banks"), len(s.BankConnections))
	for _, c := range s.BankConnections {
		status := color.GreenString("✓")
		if !c.Status.OK() {
			status = color.RedString("✗")
		}
		fmt.Fprintf(&sb, "  %s %s\n", status, c.InstitutionName)
	}
	return sb.String()
}

func formatAccounts(accounts []backend.Account) string {
	var sb strings.Builder
	if len(accounts) == 0 {
		return "No accounts\n"
	}

	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tTYPE\tINSTITUTION\tBALANCE")
	for _, a := range accounts {
		name := a.Name
		if a.Mask != "" {
			name += " ••" + a.Mask
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, a.Type, a.InstitutionName, money(a.CurrentBalance.StringFixed(2), a.CurrencyCode))
	}
	tw.Flush()

	b := ledger.Summarize(accounts)
	fmt.Fprintf(&sb, "\nAssets %s   Liabilities %s   Net worth %s\n",
		b.Assets.StringFixed(2), b.Liabilities.StringFixed(2), color.New(color.Bold).Sprint(b.NetWorth.StringFixed(2)))
	return sb.String()
}

func formatTransactions(page ledger.TransactionPage) string {
	var sb strings.Builder
	if len(page.Items) == 0 {
		return "No transactions\n"
	}

	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tDESCRIPTION\tAMOUNT\t")
	for _, tx := range page.Items {
		name := tx.MerchantName
		if name == "" {
			name = tx.Name
		}
		pending := ""
		if tx.Pending {
			pending = "pending"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tx.DateString, name, money(tx.Amount.StringFixed(2), tx.CurrencyCode), pending)
	}
	tw.Flush()

	fmt.Fprintf(&sb, "Page %d", page.Page.Number)
	if page.Total > 0 {
		fmt.Fprintf(&sb, " of %d transactions", page.Total)
	}
	if page.HasMore {
		sb.WriteString(", more available")
	}
	sb.WriteString("\n")
	return sb.String()
}

func money(amount, currency string) string {
	if currency == "" {
		return amount
	}
	return amount + " " + currency
}

func banner(title, body string) string {
	return color.New(color.FgRed, color.Bold).Sprint(title) + "\n  " + body + "\n"
}
