package instagram

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// BaseURL is the private API host
	BaseURL = "https://i.instagram.com"

	// DefaultUserAgent mimics the Android app
	DefaultUserAgent = "Instagram 309.1.0.41.113 Android (31/12; 420dpi; 1080x2340; samsung; SM-G991B; o1s; exynos2100; en_US; 541635863)"

	appID = "567067343352427"

	LoginEndpoint       = "/api/v1/accounts/login/"
	CurrentUserEndpoint = "/api/v1/accounts/current_user/"
	ReelsMediaEndpoint  = "/api/v1/feed/reels_media/"

	// FollowersPageSize is how many followers one page asks for
	FollowersPageSize = 200
	// MaxFeedPage caps the count asked of the user feed
	MaxFeedPage = 50
)

// UserFeedPath is the feed of one user's posts, newest first
func UserFeedPath(userID int64) string {
	return fmt.Sprintf("/api/v1/feed/user/%d/", userID)
}

// FollowersPath lists the accounts following a user
func FollowersPath(userID int64) string {
	return fmt.Sprintf("/api/v1/friendships/%d/followers/", userID)
}

// feedQuery asks for count posts, clamped to 1..MaxFeedPage
func feedQuery(count int) url.Values {
	if count <= 0 {
		count = 1
	} else if count > MaxFeedPage {
		count = MaxFeedPage
	}
	q := url.Values{}
	q.Set("count", strconv.Itoa(count))
	return q
}

func reelsQuery(userID int64) url.Values {
	q := url.Values{}
	q.Set("reel_ids", strconv.FormatInt(userID, 10))
	return q
}

func followersQuery(maxID string) url.Values {
	q := url.Values{}
	q.Set("count", strconv.Itoa(FollowersPageSize))
	if maxID != "" {
		q.Set("max_id", maxID)
	}
	return q
}
