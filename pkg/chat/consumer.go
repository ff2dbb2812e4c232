// Package chat runs cancellable streamed exchanges against the Nova backend.
//
// A Consumer sends one message at a time. Frames are applied strictly in
// arrival order: a tts frame's playback finishes before the next frame is
// read. If streaming fails for any reason other than cancellation the
// Consumer falls back once to the non-streaming endpoint.
package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/go-nova/internal/observe"
	"github.com/teslashibe/go-nova/pkg/fault"
	"github.com/teslashibe/go-nova/pkg/tts"
)

// Notices and fallback text shown to the user.
const (
	NoticeStopped = "Stopped"
	GenericFailure = "Sorry, something went wrong."
)

// Exchange outcomes, used for metrics.
const (
	OutcomeStreamed   = "streamed"
	OutcomeFallback   = "fallback"
	OutcomeFailed     = "failed"
	OutcomeStopped    = "stopped"
	OutcomeSuperseded = "superseded"
	OutcomeCancelled  = "cancelled"
)

// Player plays reply audio. *audio.Player implements it.
type Player interface {
	Play(ctx context.Context, url string) error
	PlayAudio(ctx context.Context, data []byte) error
}

// Reply is the visible state of one exchange.
type Reply struct {
	ExchangeID string   `json:"exchange_id"`
	Text       string   `json:"text"`
	Notices    []string `json:"notices,omitempty"`
	Final      bool     `json:"final"`
	Fallback   bool     `json:"fallback,omitempty"`
}

func (r Reply) clone() Reply {
	r.Notices = append([]string(nil), r.Notices...)
	return r
}

// Config controls what the Consumer asks of the backend.
type Config struct {
	// Speak asks the backend for reply audio.
	Speak bool `yaml:"speak"`

	// Voice is the backend voice reference file.
	Voice string `yaml:"voice"`

	SystemPrompt string `yaml:"system_prompt"`
	Hint         string `yaml:"hint"`

	// Verbose surfaces tts_error frames as notices.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the standard consumer settings.
func DefaultConfig() Config {
	return Config{Speak: true, Voice: "nova.mp3"}
}

// Deps are the Consumer's collaborators. Player, TTS and Metrics are optional.
type Deps struct {
	Client  *Client
	Player  Player
	TTS     tts.Provider
	Metrics *observe.Metrics
	Logger  *slog.Logger
}

type exchange struct {
	cancel  context.CancelFunc
	reply   Reply
	stopped bool
	done    bool
}

// Consumer runs chat exchanges. Only the latest exchange is live.
//
// Observers are called with the consumer's lock held, so updates arrive in
// order; they must not call back into the Consumer.
type Consumer struct {
	cfg     Config
	client  *Client
	player  Player
	tts     tts.Provider
	metrics *observe.Metrics
	logger  *slog.Logger

	mu             sync.Mutex
	conversationID string
	cur            *exchange

	// OnUpdate receives every change of the visible reply.
	OnUpdate func(Reply)

	// OnConversation receives the conversation id whenever it changes.
	OnConversation func(id string)
}

// NewConsumer creates a consumer.
func NewConsumer(cfg Config, deps Deps) (*Consumer, error) {
	if deps.Client == nil {
		return nil, errors.New("chat: client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:     cfg,
		client:  deps.Client,
		player:  deps.Player,
		tts:     deps.TTS,
		metrics: deps.Metrics,
		logger:  logger.With("component", "chat.consumer"),
	}, nil
}

// ConversationID returns the current conversation, if any.
func (c *Consumer) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Reset forgets the conversation so the next exchange starts a new one.
func (c *Consumer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversationID = ""
}

// Active reports whether an exchange is in flight.
func (c *Consumer) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil && !c.cur.done
}

// Send runs one exchange and returns its final reply. It cancels any
// exchange already in flight; that one finalizes silently and its Send
// returns ErrSuperseded.
func (c *Consumer) Send(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ex := &exchange{cancel: cancel, reply: Reply{ExchangeID: uuid.NewString()}}

	c.mu.Lock()
	if prev := c.cur; prev != nil && !prev.done {
		prev.done = true
		prev.cancel()
	}
	c.cur = ex
	convID := c.conversationID
	c.publishLocked(ex)
	c.mu.Unlock()

	c.logger.Debug("exchange started", "exchange", ex.reply.ExchangeID, "chars", len(text))

	req := StreamRequest{
		Message:        text,
		Msg:            text,
		ConversationID: convID,
		Speak:          c.cfg.Speak,
		Voice:          c.cfg.Voice,
		SystemPrompt:   c.cfg.SystemPrompt,
		Hint:           c.cfg.Hint,
	}

	gotAudio, err := c.stream(ctx, ex, req)
	if err == nil {
		c.speak(ctx, ex, gotAudio)
		return c.finish(ctx, ex, OutcomeStreamed, nil)
	}
	if ctx.Err() != nil {
		return c.finish(ctx, ex, "", nil)
	}

	c.logger.Warn("stream failed, falling back", "exchange", ex.reply.ExchangeID, "error", err)
	return c.fallback(ctx, ex, text)
}

// stream applies frames until done, end of stream or failure. It reports
// whether a tts frame was seen.
func (c *Consumer) stream(ctx context.Context, ex *exchange, req StreamRequest) (bool, error) {
	body, err := c.client.Stream(ctx, req)
	if err != nil {
		return false, err
	}
	defer body.Close()

	dec := NewDecoder(body)
	frames := 0
	gotAudio := false

	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return gotAudio, ctx.Err()
			}
			return gotAudio, fault.New(fault.NetworkFailure, "chat.stream", err)
		}
		if ctx.Err() != nil {
			return gotAudio, ctx.Err()
		}
		frames++
		c.metrics.RecordFrame(ctx, string(f.Event))

		switch f.Event {
		case KindMeta:
			id, err := f.ConversationID()
			if err != nil {
				c.logger.Debug("bad meta frame", "error", err)
				continue
			}
			c.setConversation(id)
		case KindTTS:
			gotAudio = true
			c.playFrame(ctx, ex, f)
			if ctx.Err() != nil {
				return gotAudio, ctx.Err()
			}
		case KindTTSError:
			msg := f.ErrorText()
			c.logger.Debug("backend speech failed", "error", msg)
			if c.cfg.Verbose {
				c.update(ex, func(r *Reply) {
					r.Notices = append(r.Notices, "Speech failed: "+msg)
				})
			}
		case KindDone:
			return gotAudio, nil
		default:
			content := f.Content()
			c.update(ex, func(r *Reply) { r.Text += content })
		}
	}

	if frames == 0 {
		return false, ErrNoFrames
	}
	return gotAudio, nil
}

func (c *Consumer) playFrame(ctx context.Context, ex *exchange, f Frame) {
	url, err := f.AudioURL()
	if err != nil {
		c.logger.Debug("bad tts frame", "error", err)
		return
	}
	if c.player == nil {
		return
	}
	if err := c.player.Play(ctx, url); err != nil && ctx.Err() == nil {
		c.logger.Warn("reply playback failed", "url", url, "error", err)
		if c.cfg.Verbose {
			c.update(ex, func(r *Reply) { r.Notices = append(r.Notices, fault.Notice(err)) })
		}
	}
}

// speak synthesizes the reply locally when speech was requested but the
// backend sent no audio.
func (c *Consumer) speak(ctx context.Context, ex *exchange, gotAudio bool) {
	if !c.cfg.Speak || gotAudio || c.tts == nil || c.player == nil {
		return
	}
	c.mu.Lock()
	text := ex.reply.Text
	c.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return
	}

	result, err := c.tts.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("speech synthesis failed", "error", err)
		}
		return
	}
	if err := c.player.PlayAudio(ctx, result.Audio); err != nil && ctx.Err() == nil {
		c.logger.Warn("speech playback failed", "error", err)
	}
}

func (c *Consumer) fallback(ctx context.Context, ex *exchange, text string) (Reply, error) {
	resp, err := c.client.Complete(ctx, text, c.ConversationID())
	if ctx.Err() != nil {
		return c.finish(ctx, ex, "", nil)
	}
	if err != nil {
		c.logger.Error("fallback failed", "exchange", ex.reply.ExchangeID, "error", err)
		c.update(ex, func(r *Reply) {
			r.Text = GenericFailure
			r.Fallback = true
		})
		return c.finish(ctx, ex, OutcomeFailed, err)
	}

	if resp.ConversationID != "" {
		c.setConversation(resp.ConversationID)
	}
	c.update(ex, func(r *Reply) {
		r.Text = resp.Text
		r.Fallback = true
	})
	c.speak(ctx, ex, false)
	return c.finish(ctx, ex, OutcomeFallback, nil)
}

// finish finalizes ex. An empty outcome means the exchange was cancelled,
// either by Stop, by a newer Send or by the caller's context.
func (c *Consumer) finish(ctx context.Context, ex *exchange, outcome string, err error) (Reply, error) {
	c.mu.Lock()
	wasDone := ex.done
	if ex.stopped {
		outcome, err = OutcomeStopped, nil
	}
	if outcome == "" {
		switch {
		case wasDone:
			outcome = OutcomeSuperseded
			err = ErrSuperseded
		default:
			outcome = OutcomeCancelled
			err = ctx.Err()
		}
	}
	ex.done = true
	ex.reply.Final = true
	if !wasDone {
		c.publishLocked(ex)
	}
	reply := ex.reply.clone()
	c.mu.Unlock()

	c.metrics.RecordExchange(context.WithoutCancel(ctx), outcome)
	c.logger.Debug("exchange finished", "exchange", reply.ExchangeID, "outcome", outcome)
	return reply, err
}

// Stop aborts the current exchange. The partial text is kept, exactly one
// "Stopped" notice is appended and no fallback is attempted.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	ex := c.cur
	if ex == nil || ex.done {
		return
	}
	ex.stopped = true
	ex.done = true
	ex.reply.Notices = append(ex.reply.Notices, NoticeStopped)
	ex.reply.Final = true
	c.publishLocked(ex)
	ex.cancel()
}

// update applies fn to ex's reply and publishes it, unless ex is finished.
func (c *Consumer) update(ex *exchange, fn func(*Reply)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ex.done {
		return
	}
	fn(&ex.reply)
	c.publishLocked(ex)
}

func (c *Consumer) publishLocked(ex *exchange) {
	if c.OnUpdate != nil && c.cur == ex {
		c.OnUpdate(ex.reply.clone())
	}
}

func (c *Consumer) setConversation(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == c.conversationID {
		return
	}
	c.conversationID = id
	if c.OnConversation != nil {
		c.OnConversation(id)
	}
}
