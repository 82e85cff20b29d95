package content

import (
	"context"
	"fmt"
	"os"
	"time"

	errs "instabridge/pkg/errors"
)

// Kind distinguishes posts from stories
type Kind string

const (
	KindPost  Kind = "post"
	KindStory Kind = "story"
)

// Audience is who a story was shared with. It is only meaningful for stories.
type Audience int

const (
	// AudienceUnknown means the source did not say
	AudienceUnknown Audience = iota
	AudienceNormal
	AudienceCloseFriends
)

func (a Audience) String() string {
	switch a {
	case AudienceNormal:
		return "normal"
	case AudienceCloseFriends:
		return "close_friends"
	default:
		return "unknown"
	}
}

// Fetcher writes an item's media into dir and returns the file paths
type Fetcher func(ctx context.Context, dir string) ([]string, error)

// Item is one post or story as seen by the relay. Items are built by the
// content source on every fetch and are not modified afterwards.
type Item struct {
	Kind     Kind
	ID       string
	NativeID string
	Title    string
	Caption  string
	// CreatedTS is unix seconds, 0 when the source did not report it
	CreatedTS float64
	Audience  Audience

	fetch Fetcher
}

// New builds an item. The id is derived from kind and native id.
func New(kind Kind, nativeID, title, caption string, createdTS float64, audience Audience, fetch Fetcher) *Item {
	return &Item{
		Kind:      kind,
		ID:        MakeID(kind, nativeID),
		NativeID:  nativeID,
		Title:     title,
		Caption:   caption,
		CreatedTS: createdTS,
		Audience:  audience,
		fetch:     fetch,
	}
}

// MakeID returns the dedupe key "<kind>:<native id>"
func MakeID(kind Kind, nativeID string) string {
	return fmt.Sprintf("%s:%s", kind, nativeID)
}

// Download materializes the item's media into dir, creating dir if needed
func (it *Item) Download(ctx context.Context, dir string) ([]string, error) {
	if it.fetch == nil {
		return nil, errs.Newf(errs.ErrorTypeDownload, "item %s has no media source", it.ID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeDownload, err, "failed to create media directory")
	}
	paths, err := it.fetch(ctx, dir)
	if err != nil {
		if errs.TypeOf(err) == errs.ErrorTypeUnknown {
			return nil, errs.Wrap(errs.ErrorTypeDownload, err, fmt.Sprintf("failed to download %s", it.ID))
		}
		return nil, err
	}
	return paths, nil
}

// IsCloseFriends reports whether the item is a story shared with close friends only
func (it *Item) IsCloseFriends() bool {
	return it.Kind == KindStory && it.Audience == AudienceCloseFriends
}

// Created returns CreatedTS as a time, or the zero time when unknown
func (it *Item) Created() time.Time {
	if it.CreatedTS == 0 {
		return time.Time{}
	}
	sec := int64(it.CreatedTS)
	return time.Unix(sec, int64((it.CreatedTS-float64(sec))*1e9))
}

// FreshSince reports whether the item was created at or after cutoff.
// Items without a creation time are never fresh.
func (it *Item) FreshSince(cutoff time.Time) bool {
	if it.CreatedTS == 0 {
		return false
	}
	return it.CreatedTS >= float64(cutoff.UnixNano())/1e9
}
