package instagram

import (
	"context"
	"sort"
	"strconv"

	"instabridge/pkg/content"
	errs "instabridge/pkg/errors"
)

func (c *Client) requireLogin() (int64, error) {
	id := c.userID()
	if id == 0 {
		return 0, errs.New(errs.ErrorTypeAuth, "not logged into Instagram")
	}
	return id, nil
}

// FetchLatestPost returns the account's newest post, or nil when there is none
func (c *Client) FetchLatestPost(ctx context.Context) (*content.Item, error) {
	id, err := c.requireLogin()
	if err != nil {
		return nil, err
	}

	var feed feedResponse
	if err := c.getJSON(ctx, UserFeedPath(id), feedQuery(1), &feed); err != nil {
		return nil, err
	}
	if len(feed.Items) == 0 {
		return nil, nil
	}
	return c.postItem(feed.Items[0], "Latest post"), nil
}

// FetchPostsSince returns up to max posts taken strictly after since, newest first
func (c *Client) FetchPostsSince(ctx context.Context, since float64, max int) ([]*content.Item, error) {
	id, err := c.requireLogin()
	if err != nil {
		return nil, err
	}

	var feed feedResponse
	if err := c.getJSON(ctx, UserFeedPath(id), feedQuery(max), &feed); err != nil {
		return nil, err
	}

	var items []*content.Item
	for _, m := range feed.Items {
		if float64(m.TakenAt) <= since {
			continue
		}
		items = append(items, c.postItem(m, "Post"))
		if max > 0 && len(items) >= max {
			break
		}
	}

	c.logger.DebugWithFields("Fetched posts since last run", map[string]interface{}{
		"since":    since,
		"returned": len(feed.Items),
		"newer":    len(items),
	})
	return items, nil
}

// FetchActiveStories returns the live stories, oldest first
func (c *Client) FetchActiveStories(ctx context.Context) ([]*content.Item, error) {
	id, err := c.requireLogin()
	if err != nil {
		return nil, err
	}

	var reels reelsResponse
	if err := c.getJSON(ctx, ReelsMediaEndpoint, reelsQuery(id), &reels); err != nil {
		return nil, err
	}

	reel := reels.Reels[strconv.FormatInt(id, 10)]
	stories := append([]Media(nil), reel.Items...)
	sort.SliceStable(stories, func(i, j int) bool {
		return stories[i].TakenAt < stories[j].TakenAt
	})

	items := make([]*content.Item, 0, len(stories))
	for _, m := range stories {
		items = append(items, c.storyItem(m))
	}
	return items, nil
}

// Followers maps user id to username for every account following the logged in user
func (c *Client) Followers(ctx context.Context) (map[int64]string, error) {
	id, err := c.requireLogin()
	if err != nil {
		return nil, err
	}

	out := make(map[int64]string)
	seen := make(map[string]bool)
	maxID := ""
	for page := 1; ; page++ {
		var resp followersResponse
		if err := c.getJSON(ctx, FollowersPath(id), followersQuery(maxID), &resp); err != nil {
			return nil, err
		}
		for _, u := range resp.Users {
			if u.PK != 0 && u.Username != "" {
				out[u.PK] = u.Username
			}
		}

		c.logger.DebugWithFields("Fetched follower page", map[string]interface{}{
			"page":  page,
			"users": len(resp.Users),
			"total": len(out),
		})

		if resp.NextMaxID == "" || seen[resp.NextMaxID] {
			break
		}
		seen[resp.NextMaxID] = true
		maxID = resp.NextMaxID
	}
	return out, nil
}
