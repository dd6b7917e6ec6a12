// Package imapsource fetches raw messages from an IMAP server. The client
// is strictly read-only: folders are opened read-only and bodies are fetched
// with BODY.PEEK so messages are never marked seen.
package imapsource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"mailtriage/internal/config"
	"mailtriage/internal/secrets"
)

// fetchChunkSize bounds how many UIDs one FETCH command carries.
const fetchChunkSize = 50

// RawMessage is one fetched message with its server-side metadata.
type RawMessage struct {
	UID          uint32
	Raw          []byte
	InternalDate time.Time
}

// Option is a functional option for Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDialTimeout sets the connection timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// Client is a read-only IMAP connection for one account.
type Client struct {
	cfg         config.IMAPConfig
	creds       secrets.Credentials
	logger      *slog.Logger
	dialTimeout time.Duration

	conn           *imapclient.Client
	selectedFolder string
}

// NewClient creates a client for the given server settings and credentials.
// No connection is made until the first fetch.
func NewClient(cfg config.IMAPConfig, creds secrets.Credentials, opts ...Option) *Client {
	c := &Client{
		cfg:         cfg,
		creds:       creds,
		logger:      slog.Default(),
		dialTimeout: 45 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if !c.cfg.SSL {
		return fmt.Errorf("account requires ssl: true; plaintext IMAP is not supported")
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	c.logger.Debug("connecting to IMAP server", "addr", addr)

	type dialResult struct {
		conn *imapclient.Client
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := imapclient.DialTLS(addr, &imapclient.Options{})
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(c.dialTimeout)
	defer timer.Stop()

	var conn *imapclient.Client
	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("dial IMAP %s: %w", addr, res.err)
		}
		conn = res.conn
	case <-timer.C:
		return fmt.Errorf("dial IMAP %s: timed out after %s", addr, c.dialTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := conn.Login(c.creds.Username, c.creds.Password).Wait(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("IMAP login: %w", err)
	}

	c.conn = conn
	c.selectedFolder = ""
	c.logger.Debug("connected and authenticated", "user", c.creds.Username)
	return nil
}

func (c *Client) selectReadOnly(folder string) error {
	if c.selectedFolder == folder {
		return nil
	}
	if _, err := c.conn.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return fmt.Errorf("SELECT %q: %w", folder, err)
	}
	c.selectedFolder = folder
	return nil
}

// FetchSince returns every message in folder whose server arrival date is on
// or after since. The SINCE search has day granularity; the caller applies
// the precise window filter on the resolved timestamps.
func (c *Client) FetchSince(ctx context.Context, folder string, since time.Time) ([]RawMessage, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if err := c.selectReadOnly(folder); err != nil {
		return nil, err
	}

	searchData, err := c.conn.UIDSearch(&imap.SearchCriteria{
		Since: since,
	}, &imap.SearchOptions{ReturnAll: true}).Wait()
	if err != nil {
		return nil, fmt.Errorf("UID SEARCH SINCE in %q: %w", folder, err)
	}

	uidSet, ok := searchData.All.(imap.UIDSet)
	if !ok {
		return nil, nil
	}
	uids, _ := uidSet.Nums()
	c.logger.Debug("search complete", "folder", folder, "candidates", len(uids))

	fetchOpts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{{Peek: true}},
	}

	var out []RawMessage
	for start := 0; start < len(uids); start += fetchChunkSize {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		end := start + fetchChunkSize
		if end > len(uids) {
			end = len(uids)
		}

		var chunk imap.UIDSet
		for _, uid := range uids[start:end] {
			chunk.AddNum(uid)
		}

		msgs, err := c.conn.Fetch(chunk, fetchOpts).Collect()
		if err != nil {
			return nil, fmt.Errorf("UID FETCH in %q: %w", folder, err)
		}
		for _, buf := range msgs {
			var raw []byte
			if len(buf.BodySection) > 0 {
				raw = buf.BodySection[0].Bytes
			}
			if len(raw) == 0 {
				continue
			}
			out = append(out, RawMessage{
				UID:          uint32(buf.UID),
				Raw:          raw,
				InternalDate: buf.InternalDate.UTC(),
			})
		}
	}
	return out, nil
}

// Close logs out and disconnects.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.selectedFolder = ""
	return conn.Logout().Wait()
}
