// Package ingest pulls messages from each configured account, normalizes
// them, and writes them to the state database. Ingestion is idempotent:
// running the same window twice changes nothing.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mailtriage/internal/config"
	"mailtriage/internal/extract"
	"mailtriage/internal/imapsource"
	"mailtriage/internal/mime"
	"mailtriage/internal/secrets"
	"mailtriage/internal/store"
	"mailtriage/internal/timewindow"
)

// Source provides raw messages for one account. The IMAP client implements
// it; tests substitute a fake.
type Source interface {
	FetchSince(ctx context.Context, folder string, since time.Time) ([]imapsource.RawMessage, error)
	Close() error
}

// SourceFactory opens a Source for an account. The default factory resolves
// the account's credentials and dials IMAP.
type SourceFactory func(ctx context.Context, acct config.AccountConfig) (Source, error)

// Option is a functional option for Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithSourceFactory replaces how account sources are opened.
func WithSourceFactory(f SourceFactory) Option {
	return func(r *Runner) { r.newSource = f }
}

// Runner ingests windows of messages into the store.
type Runner struct {
	store     *store.Store
	cfg       *config.Config
	newSource SourceFactory
	logger    *slog.Logger
}

// NewRunner builds a Runner for the given store and configuration.
func NewRunner(st *store.Store, cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		store:  st,
		cfg:    cfg,
		logger: slog.Default(),
	}
	r.newSource = r.dialIMAP
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) dialIMAP(ctx context.Context, acct config.AccountConfig) (Source, error) {
	provider, err := secrets.ForName(acct.Secrets.Provider)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", acct.ID, err)
	}
	creds, err := provider.Resolve(acct.Secrets.Reference)
	if err != nil {
		return nil, fmt.Errorf("account %s: resolve credentials: %w", acct.ID, err)
	}
	return imapsource.NewClient(acct.IMAP, creds, imapsource.WithLogger(r.logger)), nil
}

// IngestWindow ingests one window for every configured account. A failing
// account aborts that account only; the others still run. The returned error
// joins all per-account failures.
func (r *Runner) IngestWindow(ctx context.Context, w timewindow.Window) error {
	var errs []error
	for _, acct := range r.cfg.Accounts {
		if err := r.ingestAccount(ctx, acct, w); err != nil {
			r.logger.Error("account ingestion failed", "account", acct.ID, "error", err)
			errs = append(errs, fmt.Errorf("account %s: %w", acct.ID, err))
		}
	}

	if err := r.store.WithTx(func(tx *store.Tx) error {
		return tx.AppendRunLog(w.StartUTC, w.EndUTC)
	}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ingestAccount ingests one account's folders for one window inside a single
// transaction, so a mid-account failure leaves no partial writes.
func (r *Runner) ingestAccount(ctx context.Context, acct config.AccountConfig, w timewindow.Window) error {
	src, err := r.newSource(ctx, acct)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			r.logger.Warn("source close failed", "account", acct.ID, "error", cerr)
		}
	}()

	identity := acct.IdentitySet()

	return r.store.WithTx(func(tx *store.Tx) error {
		if err := tx.UpsertAccount(store.Account{
			ID:             acct.ID,
			PrimaryAddress: acct.Identity.PrimaryAddress,
			Aliases:        acct.Identity.Aliases,
		}); err != nil {
			return err
		}

		for _, folder := range acct.IMAP.Folders {
			fetched, err := src.FetchSince(ctx, folder, w.StartUTC)
			if err != nil {
				return fmt.Errorf("folder %s: %w", folder, err)
			}
			r.logger.Info("fetched messages", "account", acct.ID, "folder", folder, "count", len(fetched))

			inserted := 0
			for _, raw := range fetched {
				ok, err := r.ingestMessage(tx, acct, folder, raw, w, identity)
				if err != nil {
					// One undecodable message must not sink the account.
					r.logger.Warn("skipping message", "account", acct.ID,
						"folder", folder, "uid", raw.UID, "error", err)
					continue
				}
				if ok {
					inserted++
				}
			}
			r.logger.Info("folder ingested", "account", acct.ID, "folder", folder, "inserted", inserted)
		}
		return nil
	})
}

func (r *Runner) ingestMessage(
	tx *store.Tx,
	acct config.AccountConfig,
	folder string,
	raw imapsource.RawMessage,
	w timewindow.Window,
	identity map[string]bool,
) (bool, error) {
	msg, err := mime.Parse(raw.Raw)
	if err != nil {
		return false, fmt.Errorf("parse uid %d: %w", raw.UID, err)
	}

	ts := msg.ResolveTimestamp(raw.InternalDate)
	if !w.Contains(ts) {
		return false, nil
	}

	sender := msg.EmailSender()
	outbound := identity[sender.Email]
	messageID := mime.CanonicalMessageID(msg.MessageID, acct.ID, folder, raw.UID)
	threadID := mime.ThreadID(msg.References, msg.Subject)

	body, _ := msg.BestBodyText()
	content := extract.NewText(msg.Subject, body)

	m := store.Message{
		MessageID:       messageID,
		AccountID:       acct.ID,
		Folder:          folder,
		DateUTC:         ts,
		Sender:          sender.String(),
		SenderEmail:     sender.Email,
		To:              addressEmails(msg.To),
		Cc:              addressEmails(msg.Cc),
		Subject:         msg.Subject,
		Inbound:         !outbound,
		Outbound:        outbound,
		NewText:         content.Text,
		ExtractedSource: content.Source,
		Attachments:     msg.Attachments,
		ThreadID:        threadID,
	}

	inserted, err := tx.InsertMessage(m)
	if err != nil {
		return false, err
	}

	participants := append([]string{sender.Email}, m.To...)
	participants = append(participants, m.Cc...)
	if err := tx.UpsertThread(threadID, ts, m.Inbound, m.Outbound, participants); err != nil {
		return false, err
	}

	if inserted && r.cfg.Tickets.Enabled {
		if err := r.recordTickets(tx, m); err != nil {
			return false, err
		}
	}
	return inserted, nil
}

func addressEmails(addrs []mime.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Email != "" {
			out = append(out, a.Email)
		}
	}
	return out
}
