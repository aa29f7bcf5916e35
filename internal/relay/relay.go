// Package relay turns a parsed chat command into a streamed answer: it
// resolves the route and session, posts a provisional message, streams the
// completion backend and keeps the platform message updated until the
// final answer (or an apology) is in place.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/logger"
	"github.com/memohai/relay/internal/store"
)

// State is a step of one relay operation.
type State string

const (
	StateAckSent       State = "ACK_SENT"
	StateHistoryLoaded State = "HISTORY_LOADED"
	StateStreaming     State = "STREAMING"
	StateFlushing      State = "FLUSHING"
	StateFinalized     State = "FINALIZED"
	StateFailed        State = "FAILED"
)

// User-facing texts used when the config leaves them empty.
const (
	DefaultThinkingText      = "🤔 Thinking..."
	DefaultInProgressMarker  = " ⏳"
	DefaultApologyText       = "Sorry, I encountered an error. Please try again."
	DefaultEmptyResponseText = "Sorry, I didn't receive a proper response. Please try again."
	DefaultNotConfiguredText = "No assistant is configured for this workspace. Please ask an admin to set one up."
)

// Options wires a Relay.
type Options struct {
	Registry *channel.Registry
	Routes   store.RoutingStore
	Sessions store.SessionStore
	Backend  Backend
	Limiter  *channel.OutboundLimiter
	Config   config.RelayConfig
	// Now is the clock for flush decisions; time.Now when nil.
	Now func() time.Time
}

// Relay executes relay operations. One Relay serves all platforms; each
// call to Handle owns its own accumulator.
type Relay struct {
	registry *channel.Registry
	routes   store.RoutingStore
	sessions store.SessionStore
	resolver *Resolver
	backend  Backend
	limiter  *channel.OutboundLimiter
	cfg      config.RelayConfig
	texts    texts
	now      func() time.Time
	logger   *slog.Logger
}

type texts struct {
	thinking, marker, apology, empty, notConfigured string
}

// New creates a Relay.
func New(log *slog.Logger, opts Options) *Relay {
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Relay{
		registry: opts.Registry,
		routes:   opts.Routes,
		sessions: opts.Sessions,
		resolver: NewResolver(log, opts.Routes, opts.Sessions),
		backend:  opts.Backend,
		limiter:  opts.Limiter,
		cfg:      opts.Config,
		texts: texts{
			thinking:      orDefault(opts.Config.ThinkingText, DefaultThinkingText),
			marker:        orDefault(opts.Config.InProgressMarker, DefaultInProgressMarker),
			apology:       orDefault(opts.Config.ApologyText, DefaultApologyText),
			empty:         orDefault(opts.Config.EmptyResponseText, DefaultEmptyResponseText),
			notConfigured: orDefault(opts.Config.NotConfiguredText, DefaultNotConfiguredText),
		},
		now:    now,
		logger: log.With(slog.String("component", "relay")),
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// operation carries the per-command state of one Handle call.
type operation struct {
	cmd      channel.Command
	platform channel.Platform
	policy   channel.OutboundPolicy
	cred     channel.Credential
	handle   channel.MessageHandle
	state    State
	logger   *slog.Logger
}

func (op *operation) transition(s State) {
	op.logger.Debug("relay state", slog.String("from", string(op.state)), slog.String("to", string(s)))
	op.state = s
}

// Handle runs one command to completion and returns the terminal state.
// It never panics and never returns an error: failures after the
// provisional message end in the apology text, failures before it are
// logged.
func (r *Relay) Handle(ctx context.Context, cmd channel.Command) (final State) {
	base := r.logger
	if l, ok := logger.Lookup(ctx); ok {
		base = l.With(slog.String("component", "relay"))
	}
	log := base.With(
		slog.String("platform", cmd.Platform.String()),
		slog.String("workspace_id", cmd.WorkspaceID),
		slog.String("external_session_id", cmd.ExternalSessionID),
	)
	op := &operation{cmd: cmd, state: StateAckSent, logger: log}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("relay panic", slog.Any("panic", rec), slog.String("state", string(op.state)))
			r.apologize(ctx, op, fmt.Errorf("panic: %v", rec))
			final = StateFailed
		}
	}()

	platform, ok := r.registry.Platform(cmd.Platform)
	if !ok {
		log.Error("no platform adapter registered")
		return StateFailed
	}
	op.platform = platform
	op.policy, _ = r.registry.GetOutboundPolicy(cmd.Platform)

	cred, err := r.credential(ctx, cmd, platform.Descriptor())
	if err != nil {
		log.Error("workspace credential unavailable", slog.Any("error", err))
		return StateFailed
	}
	op.cred = cred

	route, err := r.resolver.Route(ctx, cmd)
	if err != nil {
		var cfgErr *ConfigurationError
		text := r.texts.apology
		if errors.As(err, &cfgErr) {
			log.Warn("workspace not configured", slog.Any("error", err))
			text = r.texts.notConfigured
		} else {
			log.Error("route resolution failed", slog.Any("error", err))
		}
		if _, postErr := r.post(ctx, op, text); postErr != nil {
			log.Error("post failed", slog.Any("error", postErr))
		}
		return StateFailed
	}
	log = log.With(slog.String("target_bot_id", route.Entry.TargetBotID))
	op.logger = log

	handle, err := r.post(ctx, op, r.texts.thinking)
	if err != nil {
		log.Error("provisional message failed", slog.Any("error", err))
		return StateFailed
	}
	op.handle = handle

	sess, err := r.resolver.Session(ctx, cmd, route)
	if err != nil {
		return r.fail(ctx, op, err)
	}
	messages, turn, err := r.resolver.History(ctx, sess, route.Question)
	if err != nil {
		return r.fail(ctx, op, err)
	}
	op.transition(StateHistoryLoaded)

	answer, err := r.stream(ctx, op, CompletionRequest{
		SessionID:      sess.ID,
		Messages:       messages,
		TargetBotID:    route.Entry.TargetBotID,
		ChannelTag:     cmd.Platform.String(),
		ExternalUserID: cmd.UserID,
		WorkspaceID:    cmd.WorkspaceID,
	})
	if err != nil {
		var writeErr *channel.PlatformWriteError
		if errors.As(err, &writeErr) {
			// The message can no longer be edited; an apology would fail the same way.
			log.Error("interim update failed", slog.Any("error", err))
			op.transition(StateFailed)
			return StateFailed
		}
		return r.fail(ctx, op, err)
	}

	final = r.finalize(ctx, op, answer)
	if final == StateFinalized && r.cfg.PersistTurns && answer != "" {
		r.persist(ctx, op, sess, turn, answer)
	}
	return final
}

func (r *Relay) credential(ctx context.Context, cmd channel.Command, desc channel.Descriptor) (channel.Credential, error) {
	cred := channel.Credential{WorkspaceID: cmd.WorkspaceID}
	token, err := r.routes.GetToken(ctx, cmd.WorkspaceID)
	switch {
	case err == nil:
		cred.Token = token
	case !desc.Capabilities.RequiresCredential:
		// Replies ride on a per-interaction token.
	default:
		return cred, err
	}
	if desc.Capabilities.RequiresCredential && cred.Token == "" {
		return cred, errors.New("workspace has no bot token")
	}
	return cred, nil
}

// stream relays backend fragments into interim updates and returns the full
// answer text.
func (r *Relay) stream(ctx context.Context, op *operation, req CompletionRequest) (string, error) {
	body, err := r.backend.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	defer body.Close()
	op.transition(StateStreaming)

	acc := NewAccumulator(r.cfg.FlushInterval(), r.now)
	interim := op.policy.WithReservedTail(r.texts.marker)
	err = ReadStream(ctx, op.logger, body, func(fragment string) error {
		acc.Append(fragment)
		if !acc.ShouldFlush() {
			return nil
		}
		op.transition(StateFlushing)
		text := channel.EnforceLimit(op.logger, op.platform.Format(acc.Text()), interim) + r.texts.marker
		if err := r.update(ctx, op, text); err != nil {
			return err
		}
		acc.MarkFlushed()
		op.transition(StateStreaming)
		return nil
	})
	if err != nil {
		var writeErr *channel.PlatformWriteError
		if errors.As(err, &writeErr) {
			return "", err
		}
		return "", &UpstreamError{Err: fmt.Errorf("read stream: %w", err)}
	}
	if acc.Empty() {
		return "", nil
	}
	return acc.Text(), nil
}

func (r *Relay) finalize(ctx context.Context, op *operation, answer string) State {
	text := r.texts.empty
	if answer != "" {
		text = channel.EnforceLimit(op.logger, op.platform.Format(answer), op.policy)
	} else {
		op.logger.Warn("completion produced no text")
	}
	if err := r.update(ctx, op, text); err != nil {
		op.logger.Error("final update failed", slog.Any("error", err))
		op.transition(StateFailed)
		return StateFailed
	}
	op.transition(StateFinalized)
	op.logger.Info("relay finalized", slog.Int("answer_len", len(answer)))
	return StateFinalized
}

// fail replaces the provisional message with the apology.
func (r *Relay) fail(ctx context.Context, op *operation, err error) State {
	op.logger.Error("relay failed", slog.String("state", string(op.state)), slog.Any("error", err))
	r.apologize(ctx, op, err)
	return StateFailed
}

func (r *Relay) apologize(ctx context.Context, op *operation, cause error) {
	op.transition(StateFailed)
	if op.handle == nil || op.platform == nil {
		return
	}
	if err := r.update(ctx, op, r.texts.apology); err != nil {
		op.logger.Error("apology update failed", slog.Any("error", err), slog.Any("cause", cause))
	}
}

func (r *Relay) persist(ctx context.Context, op *operation, sess store.ChatSession, turn store.Message, answer string) {
	if _, err := r.sessions.AppendMessage(ctx, sess.ID, turn); err != nil {
		op.logger.Warn("persist user turn failed", slog.Any("error", err))
		return
	}
	reply := store.Message{Role: store.RoleAssistant, Content: answer}
	if _, err := r.sessions.AppendMessage(ctx, sess.ID, reply); err != nil {
		op.logger.Warn("persist assistant turn failed", slog.Any("error", err))
	}
}

func (r *Relay) post(ctx context.Context, op *operation, text string) (channel.MessageHandle, error) {
	if err := r.limiter.Wait(ctx, limiterKey(op.cmd)); err != nil {
		return nil, &channel.PlatformWriteError{Platform: op.cmd.Platform, Op: "post", Err: err}
	}
	return op.platform.Post(ctx, op.cred, op.cmd.Reply, text)
}

func (r *Relay) update(ctx context.Context, op *operation, text string) error {
	if err := r.limiter.Wait(ctx, limiterKey(op.cmd)); err != nil {
		return &channel.PlatformWriteError{Platform: op.cmd.Platform, Op: "update", Err: err}
	}
	return op.platform.Update(ctx, op.cred, op.handle, text)
}

func limiterKey(cmd channel.Command) string {
	return cmd.Platform.String() + ":" + cmd.WorkspaceID
}
