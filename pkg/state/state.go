package state

import (
	"sort"
	"time"
)

// DeliveryState is the persisted record of what has been delivered to whom
type DeliveryState struct {
	// SentIDs is the global audit trail of every item ever delivered.
	// It never gates delivery.
	SentIDs map[string]struct{}
	// SentByRecipient maps a recipient id to the item ids it has received
	SentByRecipient map[string]map[string]struct{}
	// LastRunTS is nil until the first completed run
	LastRunTS      *float64
	LastRunFiles   []string
	LastRunCaption string
}

// New returns an empty state
func New() *DeliveryState {
	return &DeliveryState{
		SentIDs:         make(map[string]struct{}),
		SentByRecipient: make(map[string]map[string]struct{}),
		LastRunFiles:    []string{},
	}
}

// HasSent reports whether itemID was already delivered to recipientID
func (s *DeliveryState) HasSent(recipientID, itemID string) bool {
	set, ok := s.SentByRecipient[recipientID]
	if !ok {
		return false
	}
	_, sent := set[itemID]
	return sent
}

// MarkSent records a confirmed delivery in both the recipient set and the global set
func (s *DeliveryState) MarkSent(recipientID, itemID string) {
	if s.SentIDs == nil {
		s.SentIDs = make(map[string]struct{})
	}
	if s.SentByRecipient == nil {
		s.SentByRecipient = make(map[string]map[string]struct{})
	}
	set, ok := s.SentByRecipient[recipientID]
	if !ok {
		set = make(map[string]struct{})
		s.SentByRecipient[recipientID] = set
	}
	set[itemID] = struct{}{}
	s.SentIDs[itemID] = struct{}{}
}

// SentCount returns how many items a recipient has received
func (s *DeliveryState) SentCount(recipientID string) int {
	return len(s.SentByRecipient[recipientID])
}

// MarkRun stamps the time of a run that found nothing to deliver
func (s *DeliveryState) MarkRun(now time.Time) {
	ts := unixSeconds(now)
	s.LastRunTS = &ts
}

// Finalize records a completed run together with the material needed for a resend
func (s *DeliveryState) Finalize(now time.Time, files []string, caption string) {
	s.MarkRun(now)
	s.LastRunFiles = append([]string{}, files...)
	s.LastRunCaption = caption
}

// LastRun returns the last run time, or the zero time before the first run
func (s *DeliveryState) LastRun() time.Time {
	if s.LastRunTS == nil {
		return time.Time{}
	}
	sec := int64(*s.LastRunTS)
	nsec := int64((*s.LastRunTS - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Recipients returns the ids present in the per-recipient map, sorted
func (s *DeliveryState) Recipients() []string {
	ids := make([]string, 0, len(s.SentByRecipient))
	for id := range s.SentByRecipient {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return set
}
