package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/relay/internal/boot"
	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/channel/adapters/discord"
	"github.com/memohai/relay/internal/channel/adapters/slack"
	"github.com/memohai/relay/internal/channel/adapters/telegram"
	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/handlers"
	"github.com/memohai/relay/internal/relay"
	"github.com/memohai/relay/internal/store"
)

var RelayModule = fx.Module(
	"relay",
	fx.Provide(
		provideChannelRegistry,
		provideOutboundLimiter,
		fx.Annotate(provideBackend, fx.As(new(relay.Backend))),
		provideRelay,
		provideDispatcher,
		provideCommandQueue,
	),
)

// ---------------------------------------------------------------------------
// relay providers
// ---------------------------------------------------------------------------

func provideChannelRegistry(log *slog.Logger, cfg config.Config) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	if err := registry.Register(slack.NewAdapter(log, slack.Config{
		SigningSecret: cfg.Slack.SigningSecret,
		APIURL:        cfg.Slack.APIURL,
	})); err != nil {
		return nil, err
	}
	discordAdapter, err := discord.NewAdapter(log, discord.Config{
		PublicKey:   cfg.Discord.PublicKey,
		APIEndpoint: cfg.Discord.APIEndpoint,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(discordAdapter); err != nil {
		return nil, err
	}
	if err := registry.Register(telegram.NewAdapter(log, telegram.Config{
		SecretToken: cfg.Telegram.SecretToken,
		APIEndpoint: cfg.Telegram.APIEndpoint,
	})); err != nil {
		return nil, err
	}
	warnUnverifiable(log, cfg)
	return registry, nil
}

// warnUnverifiable flags platforms that will reject every delivery.
func warnUnverifiable(log *slog.Logger, cfg config.Config) {
	if cfg.Slack.SigningSecret == "" {
		log.Warn("slack signing secret not configured, slack webhooks will be rejected")
	}
	if cfg.Discord.PublicKey == "" {
		log.Warn("discord public key not configured, discord interactions will be rejected")
	}
	if cfg.Telegram.SecretToken == "" {
		log.Warn("telegram secret token not configured, telegram updates will be rejected")
	}
}

func provideOutboundLimiter(cfg config.Config) *channel.OutboundLimiter {
	return channel.NewOutboundLimiter(cfg.Relay.OutboundPerSecond, cfg.Relay.OutboundBurst)
}

func provideBackend(log *slog.Logger, rc *boot.RuntimeConfig) *relay.HTTPBackend {
	return relay.NewHTTPBackend(log, rc.Backend)
}

type relayParams struct {
	fx.In

	Logger   *slog.Logger
	Config   config.Config
	Registry *channel.Registry
	Routes   store.RoutingStore
	Sessions store.SessionStore
	Backend  relay.Backend
	Limiter  *channel.OutboundLimiter
}

func provideRelay(params relayParams) *relay.Relay {
	return relay.New(params.Logger, relay.Options{
		Registry: params.Registry,
		Routes:   params.Routes,
		Sessions: params.Sessions,
		Backend:  params.Backend,
		Limiter:  params.Limiter,
		Config:   params.Config.Relay,
	})
}

func provideDispatcher(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, r *relay.Relay) *relay.Dispatcher {
	d := relay.NewDispatcher(log, r, cfg.Relay.Concurrency, cfg.Relay.QueueSize)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			d.Start(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return d.Shutdown(ctx)
		},
	})
	return d
}

func provideCommandQueue(d *relay.Dispatcher) handlers.CommandQueue {
	return d
}
