package ingest

import (
	"regexp"

	"mailtriage/internal/store"
)

// ticketPatterns maps a configured plugin name to the key pattern it
// recognizes in subjects and message text.
var ticketPatterns = map[string]*regexp.Regexp{
	"jira":   regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`),
	"github": regexp.MustCompile(`\b(?:[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+)#\d+\b`),
}

// recordTickets scans a newly inserted message for ticket keys and records
// the sighting. Unknown plugin names are silently skipped; the config layer
// cannot know which plugins a build ships.
func (r *Runner) recordTickets(tx *store.Tx, m store.Message) error {
	for _, plugin := range r.cfg.Tickets.Plugins {
		re, ok := ticketPatterns[plugin]
		if !ok {
			continue
		}
		seen := map[string]bool{}
		for _, text := range []string{m.Subject, m.NewText} {
			for _, key := range re.FindAllString(text, -1) {
				if seen[key] {
					continue
				}
				seen[key] = true
				if err := tx.UpsertTicket(store.Ticket{
					TicketKey:       key,
					System:          plugin,
					LastActivityUTC: store.FormatTime(m.DateUTC),
				}); err != nil {
					return err
				}
				if err := tx.MapMessageTicket(m.MessageID, key); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
