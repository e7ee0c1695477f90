package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/relay/internal/assistant"
	"github.com/memohai/relay/internal/batch"
	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/channel/adapters/feishu"
	"github.com/memohai/relay/internal/channel/adapters/messenger"
	"github.com/memohai/relay/internal/channel/adapters/telegram"
	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/conversation"
	"github.com/memohai/relay/internal/db"
	"github.com/memohai/relay/internal/handlers"
	channelchecker "github.com/memohai/relay/internal/healthcheck/checkers/channel"
	dispatchchecker "github.com/memohai/relay/internal/healthcheck/checkers/dispatch"
	statechecker "github.com/memohai/relay/internal/healthcheck/checkers/state"
	"github.com/memohai/relay/internal/pipeline"
	"github.com/memohai/relay/internal/server"
	"github.com/memohai/relay/internal/version"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideStateStore,
			provideAssistantClient,
			provideChannelAdapters,
			provideChannelRegistry,
			provideAuthIssuer,
			pipeline.NewRegistry,
			provideConversationService,
			provideInvoker,
			provideEngine,
			provideBatchService,
			providePruner,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewChannelHandler),
			provideServerHandler(handlers.NewBatchesHandler),
			provideServerHandler(provideHealthHandler),
			fx.Annotate(
				provideWebhookHandlers,
				fx.ResultTags(`group:"server_handlers,flatten"`),
			),
			provideServer,
		),
		fx.Invoke(
			startPruner,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideStateStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (conversation.StateStore, error) {
	if cfg.State.Backend != config.StateBackendPostgres {
		log.Info("using in-memory conversation state")
		return conversation.NewMemoryStore(), nil
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conversation.NewPostgresStore(conn), nil
}

func provideAssistantClient(log *slog.Logger, cfg config.Config) *assistant.Client {
	return assistant.NewClient(log, cfg.Assistant.BaseURL, cfg.Assistant.WorkspaceID, cfg.Assistant.Timeout())
}

// channelAdapters holds the adapters of enabled channels; disabled ones are nil.
type channelAdapters struct {
	Messenger *messenger.MessengerAdapter
	Telegram  *telegram.TelegramAdapter
	Feishu    *feishu.FeishuAdapter
}

func provideChannelAdapters(log *slog.Logger, cfg config.Config) (channelAdapters, error) {
	var adapters channelAdapters
	if cfg.Messenger.Enabled {
		adapters.Messenger = messenger.NewMessengerAdapter(log, messenger.Config{
			AppSecret:       cfg.Messenger.AppSecret,
			VerifyToken:     cfg.Messenger.VerifyToken,
			PageAccessToken: cfg.Messenger.PageAccessToken,
			GraphAPIURL:     cfg.Messenger.GraphAPIURL,
		})
	}
	if cfg.Telegram.Enabled {
		adapters.Telegram = telegram.NewTelegramAdapter(log, telegram.Config{
			BotToken:    cfg.Telegram.BotToken,
			SecretToken: cfg.Telegram.SecretToken,
		})
	}
	if cfg.Feishu.Enabled {
		adapter, err := feishu.NewFeishuAdapter(log, feishu.Config{
			AppID:             cfg.Feishu.AppID,
			AppSecret:         cfg.Feishu.AppSecret,
			EncryptKey:        cfg.Feishu.EncryptKey,
			VerificationToken: cfg.Feishu.VerificationToken,
			Region:            cfg.Feishu.Region,
		})
		if err != nil {
			return channelAdapters{}, fmt.Errorf("feishu adapter: %w", err)
		}
		adapters.Feishu = adapter
	}
	return adapters, nil
}

func provideChannelRegistry(log *slog.Logger, adapters channelAdapters) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	enabled := make([]channel.Adapter, 0, 3)
	if adapters.Messenger != nil {
		enabled = append(enabled, adapters.Messenger)
	}
	if adapters.Telegram != nil {
		enabled = append(enabled, adapters.Telegram)
	}
	if adapters.Feishu != nil {
		enabled = append(enabled, adapters.Feishu)
	}
	for _, adapter := range enabled {
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
		log.Info("channel enabled", slog.String("channel", adapter.Type().String()))
	}
	if len(enabled) == 0 {
		log.Warn("no channels enabled; only the operator dispatch endpoint accepts batches")
	}
	return registry, nil
}

func provideAuthIssuer(cfg config.Config) (*channel.AuthIssuer, error) {
	ttl, err := cfg.Auth.PipelineTokenDuration()
	if err != nil {
		return nil, err
	}
	return channel.NewAuthIssuer(cfg.Batch.Namespace, cfg.Auth.JWTSecret, ttl), nil
}

func provideConversationService(log *slog.Logger, registry *channel.Registry, store conversation.StateStore, client *assistant.Client) *conversation.Service {
	return conversation.NewService(log, registry, store, client)
}

func provideInvoker(log *slog.Logger, cfg config.Config, pipelines *pipeline.Registry, conversations *conversation.Service) (pipeline.Invoker, error) {
	if cfg.Pipeline.Mode == config.PipelineModeGateway {
		log.Info("dispatching to pipeline gateway", slog.String("url", cfg.Pipeline.GatewayURL))
		return pipeline.NewGatewayInvoker(log, cfg.Pipeline.GatewayURL, cfg.Pipeline.Timeout()), nil
	}
	if err := conversations.Register(pipelines, conversation.PipelineName); err != nil {
		return nil, fmt.Errorf("register conversation pipeline: %w", err)
	}
	return pipelines, nil
}

func provideEngine(log *slog.Logger, cfg config.Config, invoker pipeline.Invoker) *batch.Engine {
	return batch.NewEngine(log, invoker, batch.WithMaxConcurrency(cfg.Batch.MaxConcurrency))
}

func provideBatchService(log *slog.Logger, cfg config.Config, engine *batch.Engine) *batch.Service {
	return batch.NewService(log, engine, batch.NewHistory(cfg.Batch.ReportHistory), cfg.Batch.Pipeline)
}

func providePruner(log *slog.Logger, cfg config.Config, store conversation.StateStore) (*conversation.Pruner, error) {
	ttl, err := cfg.State.TTLDuration()
	if err != nil {
		return nil, err
	}
	return conversation.NewPruner(log, store, ttl, cfg.State.PruneSchedule), nil
}

// provideWebhookHandlers mounts the inbound webhook of every enabled channel.
func provideWebhookHandlers(log *slog.Logger, adapters channelAdapters, service *batch.Service, issuer *channel.AuthIssuer) []server.Handler {
	var out []server.Handler
	if adapters.Messenger != nil {
		out = append(out, messenger.NewWebhookHandler(log, adapters.Messenger, service, issuer))
	}
	if adapters.Telegram != nil {
		out = append(out, telegram.NewWebhookHandler(log, adapters.Telegram, service, issuer))
	}
	if adapters.Feishu != nil {
		out = append(out, feishu.NewWebhookHandler(log, adapters.Feishu, service, issuer))
	}
	return out
}

func provideHealthHandler(log *slog.Logger, registry *channel.Registry, store conversation.StateStore, service *batch.Service) *handlers.HealthHandler {
	return handlers.NewHealthHandler(log,
		channelchecker.NewChecker(log, registry),
		statechecker.NewChecker(log, store),
		dispatchchecker.NewChecker(service.History(), 0.5),
	)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers...)
}

func startPruner(lc fx.Lifecycle, pruner *conversation.Pruner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return pruner.Start() },
		OnStop:  func(ctx context.Context) error { return pruner.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	fmt.Printf("Starting relay %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.Auth.JWTSecret == "" {
				logger.Warn("auth.jwt_secret is empty; operator endpoints reject every request and pipeline tokens are not issued")
			}
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			logger.Info("server listening", slog.String("addr", cfg.Server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
