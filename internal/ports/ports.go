// Package ports defines interfaces (hexagonal ports) for the external
// collaborators the scheduler core depends on but does not implement.
// Implementations live in internal/adapters; orchestration happens in
// internal/handlers and internal/domain/worker.
package ports

import (
	"context"
	"time"
)

// UserInfo is the chat client's view of a resolved user identity.
type UserInfo struct {
	Found        bool
	TimezoneName string
}

// ChatClient delivers messages to and resolves identities within the chat
// integration. Implementations live in internal/adapters (e.g. Slack).
type ChatClient interface {
	// PostDirectMessage sends text to userIdentity.
	PostDirectMessage(ctx context.Context, userIdentity, text string) error

	// LookupUser resolves userIdentity to diagnostic profile fields,
	// including an IANA timezone name when known.
	LookupUser(ctx context.Context, userIdentity string) (UserInfo, error)
}

// LLMClient produces free-text completions for summary generation.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Settings is the subset of per-user configuration the core consumes.
type Settings struct {
	// Timezone is an IANA timezone name, e.g. "America/Chicago".
	Timezone string
}

// UserSettingsStore resolves per-user configuration not owned by the core.
type UserSettingsStore interface {
	GetUserSettings(ctx context.Context, userIdentity string) (Settings, error)
}

// TimezoneResolver resolves IANA timezone names to a *time.Location,
// falling back to UTC for unknown names.
type TimezoneResolver interface {
	Resolve(name string) (*time.Location, error)
}

// ObservabilitySink reports job-processing failures and scheduler context
// to an external monitoring system (e.g. PagerDuty, structured logging).
type ObservabilitySink interface {
	SetContext(name string, data map[string]any)
	CaptureException(ctx context.Context, err error)
}
