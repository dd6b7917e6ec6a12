package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Recipient kinds stored in message_recipients.
const (
	RecipientTo = "to"
	RecipientCc = "cc"
)

// Account is one configured mailbox identity.
type Account struct {
	ID             string
	PrimaryAddress string
	Aliases        []string
}

// Message is a fully normalized message row plus its child rows.
type Message struct {
	MessageID       string
	AccountID       string
	Folder          string
	DateUTC         time.Time
	Sender          string
	SenderEmail     string
	To              []string
	Cc              []string
	Subject         string
	Inbound         bool
	Outbound        bool
	NewText         string
	ExtractedSource string
	Attachments     []string
	ThreadID        string
}

// Thread carries the aggregate activity timestamps for one thread.
type Thread struct {
	ThreadID        string
	LastInboundUTC  string
	LastOutboundUTC string
	Participants    []string
}

// TriageState is one durable per-entity key/value state row.
type TriageState struct {
	EntityID   string
	EntityType string
	State      string
	UpdatedUTC string
}

// Ticket is one external ticket reference found in message text.
type Ticket struct {
	TicketKey       string
	System          string
	URL             string
	Status          string
	LastActivityUTC string
}

// UpsertAccount records an account and its alias addresses. Aliases use
// INSERT OR IGNORE so repeated runs are no-ops.
func (t *Tx) UpsertAccount(a Account) error {
	now := time.Now().UTC().Format(TimeLayout)
	_, err := t.tx.Exec(
		`INSERT INTO accounts (id, primary_address, created_at_utc) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET primary_address = excluded.primary_address`,
		a.ID, strings.ToLower(a.PrimaryAddress), now,
	)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.ID, err)
	}
	for _, alias := range a.Aliases {
		if _, err := t.tx.Exec(
			`INSERT OR IGNORE INTO account_aliases (account_id, address) VALUES (?, ?)`,
			a.ID, strings.ToLower(alias),
		); err != nil {
			return fmt.Errorf("insert alias %s for account %s: %w", alias, a.ID, err)
		}
	}
	return nil
}

// InsertMessage writes a message and its recipient and attachment child rows.
// The message_id primary key makes re-ingestion idempotent: if the row
// already exists nothing changes and inserted is false.
func (t *Tx) InsertMessage(m Message) (inserted bool, err error) {
	res, err := t.tx.Exec(
		`INSERT OR IGNORE INTO messages
		 (message_id, account_id, folder, date_utc, sender, sender_email, subject,
		  inbound, outbound, extracted_new_text, extracted_source, has_attachments,
		  thread_id, created_at_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MessageID, m.AccountID, m.Folder,
		m.DateUTC.UTC().Format(TimeLayout),
		m.Sender, strings.ToLower(m.SenderEmail), m.Subject,
		boolInt(m.Inbound), boolInt(m.Outbound),
		m.NewText, m.ExtractedSource, boolInt(len(m.Attachments) > 0),
		m.ThreadID, time.Now().UTC().Format(TimeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert message %s: %w", m.MessageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	insertRecipients := func(kind string, addrs []string) error {
		for i, addr := range addrs {
			if _, err := t.tx.Exec(
				`INSERT INTO message_recipients (message_id, kind, position, address)
				 VALUES (?, ?, ?, ?)`,
				m.MessageID, kind, i, strings.ToLower(addr),
			); err != nil {
				return fmt.Errorf("insert %s recipient for %s: %w", kind, m.MessageID, err)
			}
		}
		return nil
	}
	if err := insertRecipients(RecipientTo, m.To); err != nil {
		return false, err
	}
	if err := insertRecipients(RecipientCc, m.Cc); err != nil {
		return false, err
	}

	for i, name := range m.Attachments {
		if _, err := t.tx.Exec(
			`INSERT INTO message_attachments (message_id, position, filename)
			 VALUES (?, ?, ?)`,
			m.MessageID, i, name,
		); err != nil {
			return false, fmt.Errorf("insert attachment for %s: %w", m.MessageID, err)
		}
	}
	return true, nil
}

// UpsertThread advances a thread's aggregate timestamps and adds
// participants. Timestamps only move forward: applying an older message
// never regresses last_inbound_at_utc or last_outbound_at_utc. The stored
// layout makes string comparison equivalent to temporal comparison.
func (t *Tx) UpsertThread(threadID string, msgDate time.Time, inbound, outbound bool, participants []string) error {
	now := time.Now().UTC().Format(TimeLayout)
	ts := msgDate.UTC().Format(TimeLayout)

	var inboundTS, outboundTS any
	if inbound {
		inboundTS = ts
	}
	if outbound {
		outboundTS = ts
	}

	_, err := t.tx.Exec(
		`INSERT INTO threads (thread_id, last_inbound_at_utc, last_outbound_at_utc, created_at_utc)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET
		   last_inbound_at_utc = CASE
		     WHEN excluded.last_inbound_at_utc IS NOT NULL
		      AND (last_inbound_at_utc IS NULL OR last_inbound_at_utc < excluded.last_inbound_at_utc)
		     THEN excluded.last_inbound_at_utc
		     ELSE last_inbound_at_utc END,
		   last_outbound_at_utc = CASE
		     WHEN excluded.last_outbound_at_utc IS NOT NULL
		      AND (last_outbound_at_utc IS NULL OR last_outbound_at_utc < excluded.last_outbound_at_utc)
		     THEN excluded.last_outbound_at_utc
		     ELSE last_outbound_at_utc END`,
		threadID, inboundTS, outboundTS, now,
	)
	if err != nil {
		return fmt.Errorf("upsert thread %s: %w", threadID, err)
	}

	for _, p := range participants {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, err := t.tx.Exec(
			`INSERT OR IGNORE INTO thread_participants (thread_id, address) VALUES (?, ?)`,
			threadID, p,
		); err != nil {
			return fmt.Errorf("insert participant for thread %s: %w", threadID, err)
		}
	}
	return nil
}

// SetTriageState upserts one durable state row. When UpdatedUTC is empty the
// current time is stamped.
func (t *Tx) SetTriageState(s TriageState) error {
	updated := s.UpdatedUTC
	if updated == "" {
		updated = time.Now().UTC().Format(TimeLayout)
	}
	_, err := t.tx.Exec(
		`INSERT INTO triage_state (entity_id, entity_type, state, updated_at_utc)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(entity_id, entity_type) DO UPDATE SET
		   state = excluded.state, updated_at_utc = excluded.updated_at_utc`,
		s.EntityID, s.EntityType, s.State, updated,
	)
	if err != nil {
		return fmt.Errorf("set triage state %s/%s: %w", s.EntityType, s.EntityID, err)
	}
	return nil
}

// UpsertTicket records an external ticket reference, moving its last
// activity time forward only.
func (t *Tx) UpsertTicket(tk Ticket) error {
	_, err := t.tx.Exec(
		`INSERT INTO tickets (ticket_key, system, url, status, last_activity_at_utc)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ticket_key) DO UPDATE SET
		   last_activity_at_utc = CASE
		     WHEN last_activity_at_utc IS NULL OR last_activity_at_utc < excluded.last_activity_at_utc
		     THEN excluded.last_activity_at_utc
		     ELSE last_activity_at_utc END`,
		tk.TicketKey, tk.System, tk.URL, tk.Status, tk.LastActivityUTC,
	)
	if err != nil {
		return fmt.Errorf("upsert ticket %s: %w", tk.TicketKey, err)
	}
	return nil
}

// MapMessageTicket links a message to a ticket key it mentions.
func (t *Tx) MapMessageTicket(messageID, ticketKey string) error {
	_, err := t.tx.Exec(
		`INSERT OR IGNORE INTO message_ticket_map (message_id, ticket_key) VALUES (?, ?)`,
		messageID, ticketKey,
	)
	if err != nil {
		return fmt.Errorf("map message %s to ticket %s: %w", messageID, ticketKey, err)
	}
	return nil
}

// MessagesInWindow returns messages with start <= date_utc < end, ordered by
// (date_utc, message_id) ascending so report output is deterministic.
func (s *Store) MessagesInWindow(start, end time.Time) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT message_id, account_id, folder, date_utc, sender, sender_email,
		        subject, inbound, outbound, extracted_new_text, extracted_source,
		        thread_id
		 FROM messages
		 WHERE date_utc >= ? AND date_utc < ?
		 ORDER BY date_utc ASC, message_id ASC`,
		start.UTC().Format(TimeLayout), end.UTC().Format(TimeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query window messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var dateUTC string
		var inbound, outbound int
		if err := rows.Scan(
			&m.MessageID, &m.AccountID, &m.Folder, &dateUTC, &m.Sender,
			&m.SenderEmail, &m.Subject, &inbound, &outbound,
			&m.NewText, &m.ExtractedSource, &m.ThreadID,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.DateUTC, err = ParseTime(dateUTC)
		if err != nil {
			return nil, fmt.Errorf("parse date for %s: %w", m.MessageID, err)
		}
		m.Inbound = inbound != 0
		m.Outbound = outbound != 0
		if err := s.loadChildren(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) loadChildren(m *Message) error {
	rows, err := s.db.Query(
		`SELECT kind, address FROM message_recipients
		 WHERE message_id = ? ORDER BY kind, position`, m.MessageID,
	)
	if err != nil {
		return fmt.Errorf("query recipients for %s: %w", m.MessageID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, addr string
		if err := rows.Scan(&kind, &addr); err != nil {
			return fmt.Errorf("scan recipient: %w", err)
		}
		switch kind {
		case RecipientTo:
			m.To = append(m.To, addr)
		case RecipientCc:
			m.Cc = append(m.Cc, addr)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	arows, err := s.db.Query(
		`SELECT filename FROM message_attachments
		 WHERE message_id = ? ORDER BY position`, m.MessageID,
	)
	if err != nil {
		return fmt.Errorf("query attachments for %s: %w", m.MessageID, err)
	}
	defer arows.Close()
	for arows.Next() {
		var name string
		if err := arows.Scan(&name); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		m.Attachments = append(m.Attachments, name)
	}
	return arows.Err()
}

// ThreadsByID loads the thread aggregates for the given thread ids. Threads
// that do not exist yet are skipped.
func (s *Store) ThreadsByID(threadIDs []string) (map[string]Thread, error) {
	out := make(map[string]Thread, len(threadIDs))
	if len(threadIDs) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(threadIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(threadIDs))
	for i, id := range threadIDs {
		args[i] = id
	}

	rows, err := s.db.Query(
		`SELECT thread_id, COALESCE(last_inbound_at_utc, ''), COALESCE(last_outbound_at_utc, '')
		 FROM threads WHERE thread_id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var th Thread
		if err := rows.Scan(&th.ThreadID, &th.LastInboundUTC, &th.LastOutboundUTC); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		out[th.ThreadID] = th
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.Query(
		`SELECT thread_id, address FROM thread_participants
		 WHERE thread_id IN (`+placeholders+`) ORDER BY address`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query thread participants: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var tid, addr string
		if err := prows.Scan(&tid, &addr); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		th, ok := out[tid]
		if !ok {
			continue
		}
		th.Participants = append(th.Participants, addr)
		out[tid] = th
	}
	return out, prows.Err()
}

// GetTriageState reads one state row. Returns sql.ErrNoRows wrapped when the
// entity has no recorded state.
func (s *Store) GetTriageState(entityID, entityType string) (TriageState, error) {
	var st TriageState
	st.EntityID = entityID
	st.EntityType = entityType
	err := s.db.QueryRow(
		`SELECT state, updated_at_utc FROM triage_state
		 WHERE entity_id = ? AND entity_type = ?`, entityID, entityType,
	).Scan(&st.State, &st.UpdatedUTC)
	if err == sql.ErrNoRows {
		return st, err
	}
	if err != nil {
		return st, fmt.Errorf("get triage state %s/%s: %w", entityType, entityID, err)
	}
	return st, nil
}

// UnrepliedCandidate is an inbound message that may be awaiting a reply.
type UnrepliedCandidate struct {
	MessageID   string
	ThreadID    string
	DateUTC     time.Time
	Sender      string
	SenderEmail string
	Subject     string
	NewText     string
}

// UnrepliedCandidates finds, per thread, the earliest inbound message since
// the lookback cutoff that was addressed to one of the target addresses
// (exact match on To or Cc), where that thread's newest message overall is
// still that same inbound message's date and no outbound message follows it.
// Address membership is exact over the recipient child rows.
func (s *Store) UnrepliedCandidates(cutoff time.Time, targets []string) ([]UnrepliedCandidate, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(targets))
	placeholders = placeholders[:len(placeholders)-1]

	args := []any{cutoff.UTC().Format(TimeLayout)}
	for _, t := range targets {
		args = append(args, strings.ToLower(t))
	}

	rows, err := s.db.Query(
		`WITH targeted AS (
		   SELECT m.message_id, m.thread_id, m.date_utc, m.sender, m.sender_email,
		          m.subject, m.extracted_new_text,
		          ROW_NUMBER() OVER (PARTITION BY m.thread_id ORDER BY m.date_utc ASC, m.message_id ASC) AS rn
		   FROM messages m
		   WHERE m.inbound = 1
		     AND m.date_utc >= ?
		     AND EXISTS (
		       SELECT 1 FROM message_recipients r
		       WHERE r.message_id = m.message_id AND r.address IN (`+placeholders+`)
		     )
		 ),
		 latest AS (
		   SELECT thread_id, MAX(date_utc) AS max_date
		   FROM messages GROUP BY thread_id
		 )
		 SELECT t.message_id, t.thread_id, t.date_utc, t.sender, t.sender_email,
		        t.subject, t.extracted_new_text
		 FROM targeted t
		 JOIN latest l ON l.thread_id = t.thread_id
		 WHERE t.rn = 1 AND l.max_date = t.date_utc
		 ORDER BY t.date_utc ASC, t.message_id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query unreplied candidates: %w", err)
	}
	defer rows.Close()

	var out []UnrepliedCandidate
	for rows.Next() {
		var c UnrepliedCandidate
		var dateUTC string
		if err := rows.Scan(&c.MessageID, &c.ThreadID, &dateUTC, &c.Sender,
			&c.SenderEmail, &c.Subject, &c.NewText); err != nil {
			return nil, fmt.Errorf("scan unreplied candidate: %w", err)
		}
		c.DateUTC, err = ParseTime(dateUTC)
		if err != nil {
			return nil, fmt.Errorf("parse candidate date: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
