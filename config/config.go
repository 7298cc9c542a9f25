package config

import (
	"os"
	"strings"
	"time"
)

// AppConfig is the main application configuration struct that composes
// the domain-specific sub-configurations.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. The environment variables are declared
// on the sub-config structs:
//   - config.go: KVConfig (storage backend selection, in-process vs. Redis),
//     SchedulerConfig (job table, lease, worker, and active jobs), ChatConfig
//     and LLMConfig (chat and LLM adapters)
//   - observability.go: metrics and failure-notification configuration
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, relaxed
	// defaults). Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// KV selects and configures the storage backend the job table, dedup
	// index, and lease are built on.
	KV KVConfig

	// Scheduler configures the job table, lease, worker, and the leader's
	// active jobs (enqueue tasks, polling, cleanup).
	Scheduler SchedulerConfig

	// Chat configures the chat integration used to deliver prompts and
	// summaries and to resolve per-user timezones.
	Chat ChatConfig

	// LLM configures the completion client used to generate summaries.
	LLM LLMConfig

	// Observability configures metrics and failure-notification fan-out.
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env. This
// should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.KV.Sanitize()
	c.Scheduler.Sanitize()
	c.Chat.Sanitize()
	c.LLM.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables. This is
// called by Sanitize() to ensure IsDev is set correctly. NODE_ENV is
// checked as a fallback (common in frontend tooling, and carried over from
// how this core's neighboring services already read development mode).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// KVConfig selects the storage backend backing the job table, dedup index,
// and lease.
type KVConfig struct {
	// Backend is "memory" (single-process, for development) or "redis"
	// (the multi-process production backend).
	Backend string `env:"KV_BACKEND" envDefault:"memory"`

	RedisAddr     string `env:"KV_REDIS_ADDR"     envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"KV_REDIS_PASSWORD"`
	RedisDB       int    `env:"KV_REDIS_DB"       envDefault:"0"`

	// TableName namespaces keys within the backend, allowing several
	// deployments to share one Redis instance.
	TableName string `env:"KV_TABLE_NAME" envDefault:"scheduler"`
}

// Sanitize normalises KV configuration.
func (c *KVConfig) Sanitize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.TableName = strings.TrimSpace(c.TableName); c.TableName == "" {
		c.TableName = "scheduler"
	}
}

// IsRedis reports whether the Redis-backed store is selected.
func (c *KVConfig) IsRedis() bool {
	return c.Backend == "redis"
}

// SchedulerConfig configures job claiming, retry, the leader lease, and the
// leader's periodic active jobs.
type SchedulerConfig struct {
	// PollingLimit bounds how many due jobs a single worker poll claims.
	PollingLimit int `env:"SCHEDULER_POLLING_LIMIT" envDefault:"25"`
	// LockTimeout is how long a claimed job's lock is held before it is
	// considered abandoned and eligible for reclaim.
	LockTimeout time.Duration `env:"SCHEDULER_LOCK_TIMEOUT" envDefault:"10m"`
	// MaxAttempts bounds retries before a job is dead-lettered.
	MaxAttempts int `env:"SCHEDULER_MAX_ATTEMPTS" envDefault:"5"`
	// BaseDelaySeconds is the base of the exponential retry backoff.
	BaseDelaySeconds int `env:"SCHEDULER_BASE_DELAY_SECONDS" envDefault:"60"`

	// PollIntervalSeconds is how often the leader polls for due jobs.
	PollIntervalSeconds int `env:"SCHEDULER_POLL_INTERVAL_SECONDS" envDefault:"30"`
	// LockCheckIntervalSeconds is how often this process refreshes or
	// attempts to acquire the leader lease.
	LockCheckIntervalSeconds int `env:"SCHEDULER_LOCK_CHECK_INTERVAL_SECONDS" envDefault:"30"`
	// StaleLeaseSeconds is how long a lease may go unrefreshed before a
	// competing process may treat it as abandoned.
	StaleLeaseSeconds int `env:"SCHEDULER_STALE_LEASE_SECONDS" envDefault:"60"`

	// RetentionDays bounds how long terminal jobs are kept before cleanup.
	RetentionDays int `env:"SCHEDULER_RETENTION_DAYS" envDefault:"7"`

	// DailySummaryUsers is the set of chat user identities targeted by the
	// daily-summary and work-sampling enqueue tasks.
	DailySummaryUsers []string `env:"SCHEDULER_DAILY_SUMMARY_USERS" envSeparator:","`
	// WorkSamplingPromptsPerDay is the number of work-sampling prompts
	// scheduled per user per day.
	WorkSamplingPromptsPerDay int `env:"SCHEDULER_WORK_SAMPLING_PROMPTS_PER_DAY" envDefault:"1"`

	// HeartbeatIntervalSeconds is the gap between a processed heartbeat_event
	// job and the follow-up heartbeat_event job it schedules. Default 60,
	// matching the once-a-minute cadence of the original cron-driven
	// heartbeat.
	HeartbeatIntervalSeconds int `env:"SCHEDULER_HEARTBEAT_INTERVAL_SECONDS" envDefault:"60"`
}

// Sanitize applies guardrails to scheduler configuration loaded from env.
func (c *SchedulerConfig) Sanitize() {
	if c.PollingLimit <= 0 {
		c.PollingLimit = 25
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 10 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelaySeconds <= 0 {
		c.BaseDelaySeconds = 60
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = 30
	}
	if c.LockCheckIntervalSeconds <= 0 {
		c.LockCheckIntervalSeconds = 30
	}
	if c.StaleLeaseSeconds <= 0 {
		c.StaleLeaseSeconds = 60
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 7
	}
	if c.WorkSamplingPromptsPerDay <= 0 {
		c.WorkSamplingPromptsPerDay = 1
	}
	if c.HeartbeatIntervalSeconds <= 0 {
		c.HeartbeatIntervalSeconds = 60
	}

	cleaned := make([]string, 0, len(c.DailySummaryUsers))
	for _, u := range c.DailySummaryUsers {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	c.DailySummaryUsers = cleaned
}

// PollInterval returns the configured poll interval as a time.Duration.
func (c *SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// HeartbeatInterval returns the configured heartbeat cadence as a time.Duration.
func (c *SchedulerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// LockCheckInterval returns the configured lock check interval as a time.Duration.
func (c *SchedulerConfig) LockCheckInterval() time.Duration {
	return time.Duration(c.LockCheckIntervalSeconds) * time.Second
}

// StaleLease returns the configured stale-lease threshold as a time.Duration.
func (c *SchedulerConfig) StaleLease() time.Duration {
	return time.Duration(c.StaleLeaseSeconds) * time.Second
}

// ChatConfig configures the chat integration adapter.
type ChatConfig struct {
	BotToken string        `env:"CHAT_BOT_TOKEN"`
	Timeout  time.Duration `env:"CHAT_TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to chat configuration loaded from env.
func (c *ChatConfig) Sanitize() {
	c.BotToken = strings.TrimSpace(c.BotToken)
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// Enabled reports whether a bot token has been configured.
func (c *ChatConfig) Enabled() bool {
	return c.BotToken != ""
}

// LLMConfig configures the completion client used for summary generation.
type LLMConfig struct {
	APIKey  string        `env:"LLM_API_KEY"`
	Model   string        `env:"LLM_MODEL"    envDefault:"gpt-4o-mini"`
	BaseURL string        `env:"LLM_BASE_URL"`
	Timeout time.Duration `env:"LLM_TIMEOUT"  envDefault:"30s"`
}

// Sanitize applies guardrails to LLM configuration loaded from env.
func (c *LLMConfig) Sanitize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.Model = strings.TrimSpace(c.Model)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Enabled reports whether an API key has been configured.
func (c *LLMConfig) Enabled() bool {
	return c.APIKey != ""
}
