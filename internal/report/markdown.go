package report

import (
	"fmt"
	"strings"

	"mailtriage/internal/store"
)

const maxShownAddrs = 4

// renderMarkdown lays out the report for humans. The JSON artifact carries
// the same data; this is a presentation of it.
func (r *Renderer) renderMarkdown(rep *Report, label string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# MailTriage — %s\n\n", label)
	fmt.Fprintf(&b, "_Timezone: %s_\n\n", rep.Timezone)

	if len(rep.HighPriority) > 0 {
		b.WriteString("## High Priority\n\n")
		for _, g := range rep.HighPriority {
			if g.SenderDisplay != "" {
				fmt.Fprintf(&b, "### %s <%s>\n\n", g.SenderDisplay, g.SenderEmail)
			} else {
				fmt.Fprintf(&b, "### %s\n\n", g.SenderEmail)
			}
			fmt.Fprintf(&b, "_Messages: %d_\n\n", len(g.Messages))
			for _, e := range g.Messages {
				fmt.Fprintf(&b, "**%s**\n\n", orNoSubject(e.Subject))
				fmt.Fprintf(&b, "_%s_\n\n", r.entryMetaLine(e))
				for _, line := range e.Excerpt {
					fmt.Fprintf(&b, "- %s\n", line)
				}
				if len(e.Excerpt) > 0 {
					b.WriteString("\n")
				}
			}
		}
	}

	if len(rep.Threads) > 0 {
		b.WriteString("## Other Messages\n\n")
		for _, tg := range rep.Threads {
			subject := ""
			if len(tg.Messages) > 0 {
				subject = tg.Messages[0].Subject
			}
			fmt.Fprintf(&b, "### %s\n\n", orNoSubject(subject))
			if len(tg.Participants) > 0 {
				fmt.Fprintf(&b, "Participants: %s\n\n", fmtAddrs(tg.Participants))
			}
			for _, e := range tg.Messages {
				fmt.Fprintf(&b, "- **%s — %s**\n", r.localClock(e.TimestampUTC), e.From)
				for _, line := range e.Excerpt {
					fmt.Fprintf(&b, "  - %s\n", line)
				}
			}
			b.WriteString("\n")
		}
	}

	if len(rep.ArrivalOnly) > 0 {
		b.WriteString("## Arrivals (No Action Needed)\n\n")
		for _, a := range rep.ArrivalOnly {
			fmt.Fprintf(&b, "- %s — **%s** _(%s)_\n",
				a.From, orNoSubject(a.Subject), r.localClock(a.TimestampUTC))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Total messages: %d\n", rep.Summary.TotalMessages)
	fmt.Fprintf(&b, "- Actionable: %d\n", rep.Summary.ActionableMessages)
	fmt.Fprintf(&b, "- Threads: %d\n", rep.Summary.Threads)

	return b.String()
}

func (r *Renderer) entryMetaLine(e ReportEntry) string {
	var parts []string
	if len(e.To) > 0 {
		parts = append(parts, "To: "+fmtAddrs(e.To))
	}
	if len(e.Cc) > 0 {
		parts = append(parts, "CC: "+fmtAddrs(e.Cc))
	}
	parts = append(parts, r.localClock(e.TimestampUTC))
	return strings.Join(parts, " • ")
}

// localClock renders a stored UTC timestamp as HH:MM in the report timezone.
func (r *Renderer) localClock(ts string) string {
	t, err := store.ParseTime(ts)
	if err != nil {
		return ts
	}
	return t.In(r.tz).Format("15:04")
}

func fmtAddrs(addrs []string) string {
	if len(addrs) <= maxShownAddrs {
		return strings.Join(addrs, ", ")
	}
	shown := strings.Join(addrs[:maxShownAddrs], ", ")
	return fmt.Sprintf("%s (+%d)", shown, len(addrs)-maxShownAddrs)
}

func orNoSubject(subject string) string {
	if strings.TrimSpace(subject) == "" {
		return "(no subject)"
	}
	return subject
}
