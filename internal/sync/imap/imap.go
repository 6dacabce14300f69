// Package imap implements the mail transport over IMAP. Connections are
// opened per scan, select the inbox read-only, and never mutate server
// state: messages are fetched with BODY.PEEK so flags stay untouched.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/mailsift/invoicesync/internal/model"
	syncpkg "github.com/mailsift/invoicesync/internal/sync"
)

// Transport dials IMAP servers. Implements sync.Transport.
type Transport struct {
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// NewTransport creates an IMAP transport.
func NewTransport(dialTimeout time.Duration, logger *slog.Logger) *Transport {
	if dialTimeout == 0 {
		dialTimeout = 30 * time.Second
	}
	return &Transport{DialTimeout: dialTimeout, Logger: logger}
}

// Connect dials the account's IMAP server and logs in.
func (t *Transport) Connect(ctx context.Context, acct model.Account) (syncpkg.Conn, error) {
	addr := net.JoinHostPort(acct.Host, fmt.Sprintf("%d", acct.Port))
	dialer := &net.Dialer{Timeout: t.DialTimeout}

	var c *client.Client
	if acct.SSL {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: acct.Host})
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("imap init: %w", err)
		}
	} else {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("imap init: %w", err)
		}
	}

	if err := c.Login(acct.Email, acct.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &conn{client: c, logger: logger.With("host", acct.Host, "email", acct.Email)}, nil
}

// conn is one exclusive mailbox connection.
type conn struct {
	client *client.Client
	logger *slog.Logger
}

// SelectInboxReadOnly selects INBOX without permitting flag changes.
func (c *conn) SelectInboxReadOnly(ctx context.Context) error {
	if _, err := c.client.Select("INBOX", true); err != nil {
		return fmt.Errorf("select INBOX: %w", err)
	}
	return nil
}

// SearchPositions runs a UID SEARCH restricted by internal date and by UIDs
// above afterPosition. SINCE/BEFORE have day granularity, matching the
// incremental-scan semantics (date >= from, date < to).
func (c *conn) SearchPositions(ctx context.Context, dateFrom, dateTo *time.Time, afterPosition uint32) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	if dateFrom != nil {
		criteria.Since = *dateFrom
	}
	if dateTo != nil {
		criteria.Before = *dateTo
	}
	if afterPosition > 0 {
		criteria.Uid = new(imap.SeqSet)
		criteria.Uid.AddRange(afterPosition+1, 0) // 0 means *
	}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}
	return uids, nil
}

// FetchRaw fetches the full raw message for one UID with BODY.PEEK.
func (c *conn) FetchRaw(ctx context.Context, position uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(position)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil {
			c.logger.Warn("read fetched body", "uid", position, "error", err)
			continue
		}
		raw = data
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("uid fetch %d: %w", position, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("uid %d not in fetch response", position)
	}
	return raw, nil
}

// Close logs out. It never raises; a hung logout is terminated.
func (c *conn) Close() {
	if err := c.client.Logout(); err != nil {
		c.client.Terminate()
	}
}
