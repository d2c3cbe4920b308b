package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/eralabs/clcl/internal/command"
	"github.com/eralabs/clcl/internal/config"
	"github.com/eralabs/clcl/internal/task"
)

const (
	webchatReconnectDelay = 5 * time.Second

	// seenCacheSize bounds the consumption cache; Discord redelivers at
	// most a short window of recent events after a gateway resume.
	seenCacheSize = 512
)

// Webchat listens for wake commands on a Discord bot gateway. The seen
// cache is the consumption marker: an entry is added only after the
// dispatch succeeds, so a redelivered event for a failed dispatch is
// processed again.
type Webchat struct {
	cfg      config.WebchatConfig
	dispatch task.Dispatcher

	state  stateVar
	cancel context.CancelFunc
	seen   *lru.Cache[string, time.Time]
}

// NewWebchat creates the webchat listener.
func NewWebchat(cfg config.WebchatConfig, dispatch task.Dispatcher) *Webchat {
	seen, _ := lru.New[string, time.Time](seenCacheSize)
	return &Webchat{
		cfg:      cfg,
		dispatch: dispatch,
		seen:     seen,
	}
}

func (w *Webchat) Name() string { return "webchat" }

func (w *Webchat) State() State { return w.state.get() }

// CheckDependencies verifies the bot token is configured.
func (w *Webchat) CheckDependencies() (bool, string) {
	if w.cfg.Token == "" {
		return false, "bot token not configured (channels.webchat.token)"
	}
	return true, "bot token present"
}

// Stop requests shutdown.
func (w *Webchat) Stop() error {
	w.state.set(StateStopping)
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

// Start connects to the gateway and blocks until Stop. Dial failures retry
// after a fixed delay; once connected, discordgo handles gateway resumes.
func (w *Webchat) Start(ctx context.Context) error {
	if w.cfg.Token == "" {
		return fmt.Errorf("webchat bot token not configured")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	defer w.state.set(StateStopped)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w.state.set(StateConnecting)
		slog.Info("Webchat connecting to gateway...")

		session, err := discordgo.New("Bot " + w.cfg.Token)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		session.Identify.Intents = discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentMessageContent
		session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			if m.Author == nil || m.Author.Bot {
				return
			}
			w.handleMessage(ctx, m.ID, m.Author.ID, m.Author.Username, m.Content)
		})

		if err := session.Open(); err != nil {
			slog.Warn("Webchat gateway dial error, retrying in 5s...", "err", err)
			w.state.set(StateReconnecting)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(webchatReconnectDelay):
				continue
			}
		}

		w.state.set(StateListening)
		slog.Info("Webchat listening")

		<-ctx.Done()
		session.Close()
		return ctx.Err()
	}
}

// handleMessage runs the shared decode → match → dispatch → mark-consumed
// path for one gateway event.
func (w *Webchat) handleMessage(ctx context.Context, messageID, authorID, username, content string) {
	if _, dup := w.seen.Get(messageID); dup {
		return
	}
	if !IsAllowed(authorID, w.cfg.AllowFrom) {
		slog.Info("Webchat ignored (sender not allowed)", "author", authorID)
		return
	}
	if _, ok := command.Match(content); !ok {
		slog.Debug("Webchat ignored (no wake prefix)", "author", authorID)
		return
	}

	sender := username
	if sender == "" {
		sender = authorID
	}

	cmd := &command.Command{
		Channel:   "webchat",
		Sender:    sender,
		Subject:   firstLine(content),
		Body:      content,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"message_id": messageID, "author_id": authorID},
	}

	if _, err := w.dispatch.Dispatch(ctx, cmd); err != nil {
		// Not marked seen: a redelivered event will retry the dispatch.
		slog.Error("Webchat dispatch failed, message left for redelivery", "err", err)
		return
	}
	w.seen.Add(messageID, time.Now())
}

// firstLine is the subject for a subjectless transport.
func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
