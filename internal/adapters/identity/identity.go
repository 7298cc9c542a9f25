// Package identity adapts the chat integration's own user lookup into the
// scheduler core's ports.UserSettingsStore and ports.TimezoneResolver, so a
// deployment that already wires a ports.ChatClient does not need a second,
// separate settings store just to resolve a user's timezone.
package identity

import (
	"context"

	"github.com/arrowhq/scheduler-core/internal/ports"
)

// ChatUserSettingsStore implements ports.UserSettingsStore by delegating to
// a ports.ChatClient's LookupUser, translating UserInfo.TimezoneName into
// Settings.Timezone. An unresolved identity yields a zero-value Settings
// (empty timezone), which TimezoneResolver callers treat as UTC.
type ChatUserSettingsStore struct {
	chat ports.ChatClient
}

var _ ports.UserSettingsStore = (*ChatUserSettingsStore)(nil)

// NewChatUserSettingsStore wraps chat as a ports.UserSettingsStore.
func NewChatUserSettingsStore(chat ports.ChatClient) *ChatUserSettingsStore {
	return &ChatUserSettingsStore{chat: chat}
}

func (s *ChatUserSettingsStore) GetUserSettings(ctx context.Context, userIdentity string) (ports.Settings, error) {
	info, err := s.chat.LookupUser(ctx, userIdentity)
	if err != nil {
		return ports.Settings{}, err
	}
	if !info.Found {
		return ports.Settings{}, nil
	}
	return ports.Settings{Timezone: info.TimezoneName}, nil
}
