package relay

import (
	"time"

	"instabridge/pkg/content"
	"instabridge/pkg/settings"
	"instabridge/pkg/state"
)

// wants applies a recipient's content toggles to an item. The close friends
// toggle governs close friends stories only; every other story follows SendStories.
func wants(r settings.Recipient, it *content.Item) bool {
	if !r.Enabled {
		return false
	}
	if it.Kind == content.KindPost {
		return r.SendPosts
	}
	if it.Audience == content.AudienceCloseFriends {
		return r.SendCloseFriendsStories
	}
	return r.SendStories
}

// recipientPlan is the ordered list of items one recipient should receive
type recipientPlan struct {
	recipient settings.Recipient
	items     []*content.Item
}

// planDeliveries gates and dedupes items per recipient. Recipients left with
// nothing are omitted. Only the recipient's own set is consulted, and not at
// all when force is set.
func planDeliveries(recipients []settings.Recipient, items []*content.Item, st *state.DeliveryState, force bool) []recipientPlan {
	var plans []recipientPlan
	for _, r := range recipients {
		var selected []*content.Item
		for _, it := range items {
			if !wants(r, it) {
				continue
			}
			if !force && st.HasSent(r.ID, it.ID) {
				continue
			}
			selected = append(selected, it)
		}
		if len(selected) > 0 {
			plans = append(plans, recipientPlan{recipient: r, items: selected})
		}
	}
	return plans
}

// uniqueItems returns the union of planned items in first-seen order
func uniqueItems(plans []recipientPlan) []*content.Item {
	seen := make(map[string]bool)
	var out []*content.Item
	for _, p := range plans {
		for _, it := range p.items {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			out = append(out, it)
		}
	}
	return out
}

// freshItems keeps items created within window of now. Items without a
// creation time are dropped.
func freshItems(items []*content.Item, now time.Time, window time.Duration) []*content.Item {
	cutoff := now.Add(-window)
	out := make([]*content.Item, 0, len(items))
	for _, it := range items {
		if it.FreshSince(cutoff) {
			out = append(out, it)
		}
	}
	return out
}

// selectRecipients returns the eligible recipients, restricted to one id when given
func selectRecipients(doc *settings.Document, recipientID string) []settings.Recipient {
	eligible := doc.Eligible()
	if recipientID == "" {
		return eligible
	}
	for _, r := range eligible {
		if r.ID == recipientID {
			return []settings.Recipient{r}
		}
	}
	return nil
}
