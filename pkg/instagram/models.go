package instagram

import "strings"

// apiError is the JSON body Instagram sends with failures
type apiError struct {
	Message           string `json:"message"`
	Status            string `json:"status"`
	ErrorType         string `json:"error_type"`
	Spam              bool   `json:"spam"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	Challenge         *struct {
		URL string `json:"url"`
	} `json:"challenge"`
}

func (e apiError) requiresLogin() bool {
	if e.TwoFactorRequired || e.Challenge != nil {
		return true
	}
	switch e.Message {
	case "login_required", "challenge_required", "checkpoint_required":
		return true
	}
	switch e.ErrorType {
	case "bad_password", "invalid_user", "checkpoint_challenge_required":
		return true
	}
	return false
}

// loginResponse is the answer to a successful login
type loginResponse struct {
	LoggedInUser struct {
		PK       int64  `json:"pk"`
		Username string `json:"username"`
	} `json:"logged_in_user"`
	Status string `json:"status"`
}

// currentUserResponse confirms a stored session still works
type currentUserResponse struct {
	User struct {
		PK       int64  `json:"pk"`
		Username string `json:"username"`
	} `json:"user"`
	Status string `json:"status"`
}

// Media types as reported in media_type
const (
	MediaTypePhoto = 1
	MediaTypeVideo = 2
	MediaTypeAlbum = 8
)

// Candidate is one rendition of an image or video
type Candidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Media is a feed post or a story as the private API returns it
type Media struct {
	PK        int64  `json:"pk"`
	Code      string `json:"code"`
	TakenAt   int64  `json:"taken_at"`
	MediaType int    `json:"media_type"`
	Caption   *struct {
		Text string `json:"text"`
	} `json:"caption"`
	ImageVersions2 struct {
		Candidates []Candidate `json:"candidates"`
	} `json:"image_versions2"`
	VideoVersions  []Candidate `json:"video_versions"`
	CarouselMedia  []Media     `json:"carousel_media"`
	IsCloseFriends *bool       `json:"is_close_friends"`
	Audience       string      `json:"audience"`
}

// CaptionText returns the trimmed caption, empty when there is none
func (m *Media) CaptionText() string {
	if m.Caption == nil {
		return ""
	}
	return strings.TrimSpace(m.Caption.Text)
}

type feedResponse struct {
	Items         []Media `json:"items"`
	MoreAvailable bool    `json:"more_available"`
	NextMaxID     string  `json:"next_max_id"`
	Status        string  `json:"status"`
}

type reelsResponse struct {
	Reels map[string]struct {
		Items []Media `json:"items"`
	} `json:"reels"`
	Status string `json:"status"`
}

// UserShort is a follower entry
type UserShort struct {
	PK       int64  `json:"pk"`
	Username string `json:"username"`
}

type followersResponse struct {
	Users     []UserShort `json:"users"`
	NextMaxID string      `json:"next_max_id"`
	Status    string      `json:"status"`
}
