// Package relay drives the poll/classify/format/send/persist cycle.
//
// Delivery is at-least-once: the cursor is persisted only after a whole
// batch has been delivered, so a failure (or crash) between sending and
// persisting makes the next cycle resend the batch. Messages are never
// silently dropped; any transport-class failure retries the entire cycle
// after a fixed backoff.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"ghrelay/internal/cursor"
	"ghrelay/internal/github"
	"ghrelay/internal/notif"
	"ghrelay/internal/slack"
	"ghrelay/pkg/logx"
)

// Source lists a channel's messages newer than a watermark, newest-first.
type Source interface {
	ConversationsHistory(ctx context.Context, p slack.HistoryParams) ([]slack.Message, error)
}

// Sink posts one formatted message.
type Sink interface {
	PostMessage(ctx context.Context, msg slack.ChatMessage) error
}

// Unsubscriber implements the team-review unsubscribe heuristic.
type Unsubscriber interface {
	UnsubscribePR(ctx context.Context, repo github.Repository, prNumber int, login string) (bool, error)
}

type Config struct {
	MailChannel  string
	NotifChannel string
	// Login is the GitHub user protected by the unsubscribe heuristic;
	// empty disables unsubscribing.
	Login        string
	Interval     time.Duration
	RetryBackoff time.Duration
	FetchLimit   int
}

type Deps struct {
	Source Source
	Sink   Sink
	GitHub notif.Enricher
	Unsub  Unsubscriber
	Store  cursor.Store
	Log    logx.Logger
	// Clock defaults to the real clock when nil.
	Clock Clock
}

const (
	defaultUsername  = "ghrelay"
	defaultIconEmoji = ":mailbox_with_mail:"
	alertMention     = "\n<!here>"
)

// Poller runs one strictly sequential cycle at a time; it is the cursor
// store's single writer.
type Poller struct {
	mu  sync.Mutex
	cfg Config

	src   Source
	sink  Sink
	gh    notif.Enricher
	unsub Unsubscriber
	store cursor.Store
	clock Clock
	log   logx.Logger
}

func New(cfg Config, d Deps) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Second
	}
	clock := d.Clock
	if clock == nil {
		clock = realClock{}
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		cfg:   cfg,
		src:   d.Source,
		sink:  d.Sink,
		gh:    d.GitHub,
		unsub: d.Unsub,
		store: d.Store,
		clock: clock,
		log:   log,
	}
}

// Apply swaps the poller config between cycles (config hot reload).
func (p *Poller) Apply(cfg Config) {
	p.mu.Lock()
	if cfg.Interval <= 0 {
		cfg.Interval = p.cfg.Interval
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = p.cfg.RetryBackoff
	}
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *Poller) config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Run loops until ctx is done or a non-retryable error occurs. A failed
// cycle persists nothing and is retried from the fetch after the backoff;
// notifications already sent by the aborted attempt are resent.
func (p *Poller) Run(ctx context.Context) error {
	state, err := p.store.Load(ctx)
	if err != nil {
		return err
	}
	p.log.Info("starting from cursor", logx.String("last_ts", state.LastTS))

	for {
		cfg := p.config()

		next, err := p.runCycle(ctx, cfg, state)
		switch {
		case err == nil:
			state = next
			if err := p.clock.Sleep(ctx, cfg.Interval); err != nil {
				return nil
			}

		case ctx.Err() != nil:
			return nil

		case isFatal(err):
			p.log.Error("non-retryable error, stopping", logx.Err(err))
			return err

		default:
			p.log.Warn("cycle failed, retrying after backoff",
				logx.Err(err), logx.Duration("backoff", cfg.RetryBackoff))
			if err := p.clock.Sleep(ctx, cfg.RetryBackoff); err != nil {
				return nil
			}
		}
	}
}

// isFatal reports whether the cycle error cannot be cured by retrying.
func isFatal(err error) bool {
	var inv *notif.InvariantError
	return errors.As(err, &inv)
}

type classified struct {
	n          notif.Notification
	suppressed bool
}

// runCycle performs one full fetch/classify/unsubscribe/send/persist pass
// and returns the new cursor state. On any error the passed-in state is
// returned unchanged and nothing has been persisted.
func (p *Poller) runCycle(ctx context.Context, cfg Config, state cursor.State) (cursor.State, error) {
	msgs, err := p.src.ConversationsHistory(ctx, slack.HistoryParams{
		Channel:  cfg.MailChannel,
		OldestTS: state.LastTS,
		Limit:    cfg.FetchLimit,
	})
	if err != nil {
		return state, err
	}
	if len(msgs) == 0 {
		return state, nil
	}

	// The API returns newest-first; deliver oldest-first to preserve the
	// causal order of the underlying events.
	reverse(msgs)

	items := make([]classified, 0, len(msgs))
	for _, msg := range msgs {
		em, ok := slack.ExtractEmail(msg)
		if !ok {
			p.log.Debug("skipping message without email attachment", logx.String("ts", msg.TS))
			continue
		}
		n, err := notif.Classify(ctx, p.gh, notif.ParseEmail(em))
		if err != nil {
			return state, err
		}
		items = append(items, classified{n: n})
	}

	if err := p.unsubscribeTeamRequests(ctx, cfg, items); err != nil {
		return state, err
	}

	for _, it := range items {
		if it.suppressed {
			continue
		}
		msg := notif.Format(it.n)
		if msg == nil {
			continue
		}
		if err := p.send(ctx, cfg, it.n, msg); err != nil {
			return state, err
		}
	}

	next := cursor.State{LastTS: msgs[len(msgs)-1].TS}
	if err := p.store.Save(ctx, next); err != nil {
		return state, err
	}
	p.log.Info("cycle complete",
		logx.Int("messages", len(msgs)),
		logx.Int("notifications", len(items)),
		logx.String("last_ts", next.LastTS))
	return next, nil
}

// unsubscribeTeamRequests applies the best-effort heuristic that stops a
// noisy PR's team-wide mentions: for every team review request in the
// batch, unsubscribe the configured user unless they hold a direct
// request. A successful unsubscribe also suppresses that notification.
//
// Known race, inherited deliberately: batches are processed in order, so
// an unsubscribe triggered by an older batch can land after a newer
// direct-mention notification was already classified, silencing future
// direct mentions on that PR.
func (p *Poller) unsubscribeTeamRequests(ctx context.Context, cfg Config, items []classified) error {
	if cfg.Login == "" || p.unsub == nil {
		return nil
	}
	for i := range items {
		tr, ok := items[i].n.(notif.TeamReviewRequested)
		if !ok {
			continue
		}
		done, err := p.unsub.UnsubscribePR(ctx, tr.PR.Repo, tr.PR.Number, cfg.Login)
		if err != nil {
			return err
		}
		if done {
			p.log.Info("unsubscribed from team-reviewed PR",
				logx.String("repo", tr.PR.Repo.FullName()),
				logx.Int("pr", tr.PR.Number))
			items[i].suppressed = true
		}
	}
	return nil
}

func (p *Poller) send(ctx context.Context, cfg Config, n notif.Notification, msg *notif.ChatMessage) error {
	text := msg.Text
	if notif.ShouldAlert(n) {
		text += alertMention
	}
	username := msg.Username
	if username == "" {
		username = defaultUsername
	}
	iconEmoji := ""
	if msg.IconURL == "" {
		iconEmoji = defaultIconEmoji
	}

	p.log.Debug("sending notification", logx.String("kind", n.Kind()))
	return p.sink.PostMessage(ctx, slack.ChatMessage{
		Channel:   cfg.NotifChannel,
		Text:      text,
		Username:  username,
		IconURL:   msg.IconURL,
		IconEmoji: iconEmoji,
	})
}

func reverse(msgs []slack.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
