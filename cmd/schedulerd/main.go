// Command schedulerd is the scheduler-core daemon: it holds (or contends
// for) the leader lease, runs the leader's periodic enqueue and cleanup
// jobs while it holds that lease, and always runs the worker poll/dispatch
// loop gated behind the same lease. Grounded in the teacher's
// cmd/merrymaker/main.go shape: InitLogger, LoadConfig, construct
// collaborators, run until an OS signal asks for a graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arrowhq/scheduler-core/config"
	"github.com/arrowhq/scheduler-core/internal/adapters/identity"
	"github.com/arrowhq/scheduler-core/internal/adapters/llm"
	"github.com/arrowhq/scheduler-core/internal/adapters/schedulerloop"
	"github.com/arrowhq/scheduler-core/internal/adapters/workerrunner"
	"github.com/arrowhq/scheduler-core/internal/bootstrap"
	"github.com/arrowhq/scheduler-core/internal/domain/job"
	"github.com/arrowhq/scheduler-core/internal/domain/lease"
	"github.com/arrowhq/scheduler-core/internal/domain/worker"
	"github.com/arrowhq/scheduler-core/internal/handlers"
	"github.com/arrowhq/scheduler-core/internal/kv"
	"github.com/arrowhq/scheduler-core/internal/kv/memkv"
	"github.com/arrowhq/scheduler-core/internal/kv/rediskv"
	"github.com/arrowhq/scheduler-core/internal/observability/notify"
	"github.com/arrowhq/scheduler-core/internal/observability/notify/pagerduty"
	"github.com/arrowhq/scheduler-core/internal/observability/notify/slack"
	"github.com/arrowhq/scheduler-core/internal/observability/statsd"
	"github.com/arrowhq/scheduler-core/internal/ports"
)

func main() {
	logger := bootstrap.InitLogger()

	if err := run(logger); err != nil {
		logger.Error("schedulerd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("starting schedulerd",
		"kv_backend", cfg.KV.Backend,
		"chat_enabled", cfg.Chat.Enabled(),
		"llm_enabled", cfg.LLM.Enabled(),
		"dev_mode", cfg.IsDev,
	)

	store, err := buildStore(cfg.KV)
	if err != nil {
		return fmt.Errorf("build kv store: %w", err)
	}

	metricsSink, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  "scheduler_core",
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("build statsd client: %w", err)
	}

	sink := buildObservabilitySink(cfg.Observability.Notifications, logger)

	table, err := job.NewTable(store)
	if err != nil {
		return fmt.Errorf("build job table: %w", err)
	}
	dedup, err := job.NewDedupIndex(store)
	if err != nil {
		return fmt.Errorf("build dedup index: %w", err)
	}
	enqueuer, err := job.NewEnqueuer(table, dedup)
	if err != nil {
		return fmt.Errorf("build enqueuer: %w", err)
	}
	retryPolicy, err := job.NewRetryPolicy(job.RetryPolicyOptions{
		BaseDelay:   time.Duration(cfg.Scheduler.BaseDelaySeconds) * time.Second,
		MaxAttempts: cfg.Scheduler.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("build retry policy: %w", err)
	}

	lockTimeout, err := resolveLockTimeout(cfg.Scheduler.LockTimeout)
	if err != nil {
		return fmt.Errorf("resolve lock timeout: %w", err)
	}

	hostname, _ := os.Hostname()
	processID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	ls, err := lease.New(lease.Options{
		Store:        store,
		ProcessID:    processID,
		StaleAfter:   cfg.Scheduler.StaleLease(),
		InstanceInfo: hostname,
	})
	if err != nil {
		return fmt.Errorf("build lease: %w", err)
	}

	chatClient, err := buildChatClient(cfg.Chat)
	if err != nil {
		return fmt.Errorf("build chat client: %w", err)
	}
	llmClient, err := buildLLMClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	registry := worker.NewRegistry(worker.RegistryOptions{})
	if err := handlers.RegisterAll(registry, handlers.Deps{
		Chat:              chatClient,
		LLM:               llmClient,
		Enqueuer:          enqueuer,
		Logger:            logger,
		HeartbeatInterval: cfg.Scheduler.HeartbeatInterval(),
	}); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	wk, err := worker.New(worker.Options{
		WorkerID:     processID,
		Table:        table,
		Registry:     registry,
		RetryPolicy:  retryPolicy,
		Sink:         sink,
		Metrics:      metricsSink,
		PollingLimit: cfg.Scheduler.PollingLimit,
		LockTimeout:  lockTimeout,
	})
	if err != nil {
		return fmt.Errorf("build worker: %w", err)
	}

	workerRunner, err := workerrunner.New(workerrunner.Options{
		Worker:       wk,
		Concurrency:  1,
		PollInterval: cfg.Scheduler.PollInterval(),
		Logger:       logger,
		Metrics:      metricsSink,
	})
	if err != nil {
		return fmt.Errorf("build worker runner: %w", err)
	}

	loop, err := schedulerloop.New(schedulerloop.Options{
		Lease:                     ls,
		Enqueuer:                  enqueuer,
		Table:                     table,
		WorkerRunner:              workerRunner,
		Settings:                  identity.NewChatUserSettingsStore(chatClient),
		Timezones:                 identity.LocalTimezoneResolver{},
		Logger:                    logger,
		Metrics:                   metricsSink,
		LockCheckInterval:         cfg.Scheduler.LockCheckInterval(),
		RetentionDays:             cfg.Scheduler.RetentionDays,
		DailySummaryUsers:         cfg.Scheduler.DailySummaryUsers,
		WorkSamplingPromptsPerDay: cfg.Scheduler.WorkSamplingPromptsPerDay,
	})
	if err != nil {
		return fmt.Errorf("build scheduler loop: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
		return <-errCh
	case err := <-errCh:
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler loop stopped: %w", err)
		}
		return nil
	}
}

// resolveLockTimeout normalises the configured job claim lock timeout via
// the same second-granularity clamping the rest of the core's lease
// durations go through, rather than passing a raw, possibly sub-second or
// overflowing duration straight to the worker.
func resolveLockTimeout(configured time.Duration) (time.Duration, error) {
	policy, err := job.NewLeasePolicy(10 * time.Minute)
	if err != nil {
		return 0, err
	}
	decision := policy.Resolve(configured)
	return time.Duration(decision.Seconds) * time.Second, nil
}

func buildStore(cfg config.KVConfig) (kv.Store, error) {
	if !cfg.IsRedis() {
		return memkv.New(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return rediskv.New(client, cfg.TableName), nil
}

func buildChatClient(cfg config.ChatConfig) (ports.ChatClient, error) {
	if !cfg.Enabled() {
		return noopChatClient{}, nil
	}
	return slack.NewWebClient(slack.WebClientConfig{
		BotToken: cfg.BotToken,
		Timeout:  cfg.Timeout,
	})
}

func buildLLMClient(cfg config.LLMConfig) (ports.LLMClient, error) {
	if !cfg.Enabled() {
		return noopLLMClient{}, nil
	}
	return llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	})
}

func buildObservabilitySink(cfg config.ObservabilityNotificationsConfig, logger *slog.Logger) ports.ObservabilitySink {
	var destinations []notify.Sink

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("slack notification sink disabled", "error", err)
		} else {
			destinations = append(destinations, client)
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("pagerduty notification sink disabled", "error", err)
		} else {
			destinations = append(destinations, client)
		}
	}

	return notify.NewCompositeSink(logger, destinations...)
}

// noopChatClient backs deployments that have not configured a chat
// integration: timezone resolution falls back to UTC and message delivery
// is a silent no-op rather than a startup failure, since a scheduler core
// with no chat integration still has a job table, lease, and worker worth
// running.
type noopChatClient struct{}

func (noopChatClient) PostDirectMessage(ctx context.Context, userIdentity, text string) error {
	return nil
}

func (noopChatClient) LookupUser(ctx context.Context, userIdentity string) (ports.UserInfo, error) {
	return ports.UserInfo{}, nil
}

type noopLLMClient struct{}

func (noopLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("llm client not configured")
}
