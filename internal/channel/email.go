package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"

	"github.com/eralabs/clcl/internal/command"
	"github.com/eralabs/clcl/internal/config"
	"github.com/eralabs/clcl/internal/task"
)

const (
	// idleTimeout stays below the server's idle-drop threshold (Gmail
	// documents ~29 minutes) so the client refreshes the session before the
	// server silently closes it.
	idleTimeout = 29 * time.Minute

	emailReconnectDelay = 10 * time.Second
)

// Email watches a mailbox over IMAP IDLE. Matched messages are dispatched
// and then flagged \Seen; everything else stays unseen.
type Email struct {
	cfg      config.EmailConfig
	dispatch task.Dispatcher

	state    stateVar
	cancel   context.CancelFunc
	activity chan struct{}
}

// NewEmail creates the email listener.
func NewEmail(cfg config.EmailConfig, dispatch task.Dispatcher) *Email {
	return &Email{
		cfg:      cfg,
		dispatch: dispatch,
		activity: make(chan struct{}, 1),
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) State() State { return e.state.get() }

// CheckDependencies verifies the monitored address and credential are set.
func (e *Email) CheckDependencies() (bool, string) {
	if e.cfg.Address == "" {
		return false, "monitored address not configured (channels.email.address or CLCL_EMAIL)"
	}
	if e.cfg.AppPassword == "" {
		return false, "app password not configured (channels.email.appPassword or CLCL_APP_PASSWORD)"
	}
	return true, fmt.Sprintf("%s via %s", e.cfg.Address, e.cfg.IMAPHost)
}

// Stop requests shutdown; a session blocked in IDLE unblocks immediately.
func (e *Email) Stop() error {
	e.state.set(StateStopping)
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

// Start runs the connect/idle/sweep loop until Stop. Connection-level errors
// never terminate the listener; it reconnects after a fixed delay.
func (e *Email) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)
	defer e.state.set(StateStopped)

	for {
		e.state.set(StateConnecting)
		err := e.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Warn("Email connection lost, reconnecting in 10s...", "err", err)
		e.state.set(StateReconnecting)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(emailReconnectDelay):
		}
	}
}

// session holds one IMAP connection: login, select, then alternate between
// IDLE and unseen-message sweeps until an error or stop.
func (e *Email) session(ctx context.Context) error {
	slog.Info("Email connecting", "host", e.cfg.IMAPHost, "mailbox", e.cfg.Mailbox)

	c, err := imapclient.DialTLS(e.cfg.IMAPHost, &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					e.notify()
				}
			},
		},
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", e.cfg.IMAPHost, err)
	}
	defer c.Close()

	if err := c.Login(e.cfg.Address, e.cfg.AppPassword).Wait(); err != nil {
		return fmt.Errorf("login %s: %w", e.cfg.Address, err)
	}
	if _, err := c.Select(e.cfg.Mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("select %s: %w", e.cfg.Mailbox, err)
	}

	slog.Info("Email listening", "address", e.cfg.Address)

	for {
		e.state.set(StateListening)
		idle, err := c.Idle()
		if err != nil {
			return fmt.Errorf("enter idle: %w", err)
		}

		woke, waitErr := waitActivity(ctx, e.activity, idleTimeout)

		if err := idle.Close(); err != nil {
			return fmt.Errorf("end idle: %w", err)
		}
		if err := idle.Wait(); err != nil {
			return fmt.Errorf("end idle: %w", err)
		}
		if waitErr != nil {
			c.Logout().Wait()
			return waitErr
		}
		if !woke {
			// Liveness refresh, not an error: re-enter IDLE.
			slog.Debug("Email idle refresh", "timeout", idleTimeout)
			continue
		}

		if err := e.sweep(ctx, c); err != nil {
			return err
		}
	}
}

// notify signals mailbox activity without blocking the IMAP reader.
func (e *Email) notify() {
	select {
	case e.activity <- struct{}{}:
	default:
	}
}

// waitActivity blocks until mailbox activity, a stop request, or the idle
// refresh timeout. woke is true only for real activity.
func waitActivity(ctx context.Context, activity <-chan struct{}, timeout time.Duration) (woke bool, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-activity:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// sweep fetches unseen messages, dispatches the ones carrying a wake prefix,
// and flags only those \Seen. Non-matching mail is logged and left unseen.
func (e *Email) sweep(ctx context.Context, c *imapclient.Client) error {
	data, err := c.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return fmt.Errorf("search unseen: %w", err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	section := &imap.FetchItemBodySection{}
	msgs, err := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return fmt.Errorf("fetch unseen: %w", err)
	}

	for _, msg := range msgs {
		raw := msg.BodySection[section]
		if len(raw) == 0 {
			continue
		}

		cmd, ok := e.parseMessage(raw)
		if !ok {
			continue
		}

		if _, err := e.dispatch.Dispatch(ctx, cmd); err != nil {
			// Leave the message unseen so the next sweep re-offers it.
			slog.Error("Email dispatch failed, leaving message unseen", "err", err)
			continue
		}

		if err := c.Store(imap.UIDSetNum(msg.UID), &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagSeen},
		}, nil).Close(); err != nil {
			slog.Warn("Email flag \\Seen failed, message may redeliver", "uid", msg.UID, "err", err)
		}
	}
	return nil
}

// parseMessage turns one raw RFC 822 message into a Command, or reports
// false for mail without a wake prefix or from a non-allowed sender.
func (e *Email) parseMessage(raw []byte) (*command.Command, bool) {
	subject, sender, body := decodeMessage(raw)

	if !IsAllowed(sender, e.cfg.AllowFrom) {
		slog.Info("Email ignored (sender not allowed)", "from", sender)
		return nil, false
	}
	if _, ok := command.Match(subject); !ok {
		slog.Info("Email ignored (no wake prefix)", "from", sender, "subject", subject)
		return nil, false
	}

	return &command.Command{
		Channel:   "email",
		Sender:    sender,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"transport": "imap"},
	}, true
}

// decodeMessage extracts subject, sender address, and plain-text body with a
// lossy fallback at every step: a malformed header or unknown charset
// degrades to raw text, never an error.
func decodeMessage(raw []byte) (subject, sender, body string) {
	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		// Unparseable mail: still check the raw text for a wake prefix.
		return firstHeaderValue(raw, "Subject"), firstHeaderValue(raw, "From"), string(raw)
	}

	subject = decodeHeader(ent.Header.Get("Subject"))
	sender = senderAddress(ent.Header.Get("From"))
	body = extractBody(ent)
	return subject, sender, body
}

// decodeHeader decodes RFC 2047 encoded words, falling back to the raw
// value when decoding fails.
func decodeHeader(raw string) string {
	dec := mime.WordDecoder{CharsetReader: charset.Reader}
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// senderAddress reduces a From header to the bare address when possible.
func senderAddress(raw string) string {
	decoded := decodeHeader(raw)
	addr, err := netmail.ParseAddress(decoded)
	if err != nil {
		return strings.TrimSpace(decoded)
	}
	return addr.Address
}

// extractBody returns the first text/plain part of a multipart message, the
// single body otherwise, or an empty string for a multipart message with no
// plain-text part.
func extractBody(ent *message.Entity) string {
	mediaType, _, _ := ent.Header.ContentType()
	if !strings.HasPrefix(mediaType, "multipart/") {
		b, err := io.ReadAll(ent.Body)
		if err != nil {
			return ""
		}
		return string(b)
	}

	mr := ent.MultipartReader()
	if mr == nil {
		return ""
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return ""
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return ""
		}
		partType, _, _ := part.Header.ContentType()
		if partType == "text/plain" {
			b, err := io.ReadAll(part.Body)
			if err != nil {
				return ""
			}
			return string(b)
		}
	}
}

// firstHeaderValue scans raw header lines for a field without parsing the
// full message. Best effort only, used when the MIME reader gives up.
func firstHeaderValue(raw []byte, key string) string {
	prefix := strings.ToLower(key) + ":"
	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" || line == "\r" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}
