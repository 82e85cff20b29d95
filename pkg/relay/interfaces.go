package relay

import (
	"context"

	"instabridge/pkg/content"
)

// Source is where content items come from
type Source interface {
	// Authenticate logs in; it must succeed before any fetch
	Authenticate(ctx context.Context, username, password string) error
	// FetchLatestPost returns the newest post, or nil when the account has none
	FetchLatestPost(ctx context.Context) (*content.Item, error)
	// FetchPostsSince returns up to max posts created strictly after since (unix seconds)
	FetchPostsSince(ctx context.Context, since float64, max int) ([]*content.Item, error)
	// FetchActiveStories returns the live stories in chronological order
	FetchActiveStories(ctx context.Context) ([]*content.Item, error)
}

// Target addresses a chat by contact name and/or phone number
type Target struct {
	Name  string
	Phone string
}

func (t Target) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Phone
}

// Channel delivers media to a chat
type Channel interface {
	Open(ctx context.Context) error
	Close() error
	// Address makes sure the target's chat is active; calling it twice is harmless
	Address(ctx context.Context, target Target) error
	// DeliverBatch sends files with a caption. It either succeeds as a whole or returns an error.
	DeliverBatch(ctx context.Context, target Target, files []string, caption string) error
	SendText(ctx context.Context, target Target, text string) error
}
