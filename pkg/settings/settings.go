package settings

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultTZ is used when no valid timezone is configured
	DefaultTZ = "Europe/Berlin"
	// DefaultTime is used when no valid HH:MM is configured
	DefaultTime = "19:00"
	// DefaultRecipientID is the id of the recipient synthesized from configuration
	DefaultRecipientID = "default"

	currentVersion = 1
)

// Schedule is the global daily run schedule
type Schedule struct {
	Enabled  bool   `json:"enabled"`
	TZ       string `json:"tz"`
	TimeHHMM string `json:"time_hhmm"`
}

// DefaultSchedule returns the schedule used when none is configured
func DefaultSchedule() Schedule {
	return Schedule{Enabled: true, TZ: DefaultTZ, TimeHHMM: DefaultTime}
}

// Recipient is a WhatsApp contact together with its content preferences.
// A nil schedule field inherits the global schedule.
type Recipient struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ContactName string `json:"wa_contact_name"`
	Phone       string `json:"wa_phone"`
	Enabled     bool   `json:"enabled"`

	SendPosts               bool `json:"send_posts"`
	SendStories             bool `json:"send_stories"`
	SendCloseFriendsStories bool `json:"send_close_friends_stories"`

	ScheduleEnabled *bool   `json:"schedule_enabled"`
	ScheduleTZ      *string `json:"schedule_tz"`
	ScheduleTime    *string `json:"schedule_time_hhmm"`
}

// HasContact reports whether the recipient can be addressed at all
func (r Recipient) HasContact() bool {
	return r.ContactName != "" || r.Phone != ""
}

// Eligible reports whether runs should consider this recipient
func (r Recipient) Eligible() bool {
	return r.Enabled && r.HasContact()
}

// ChatName is the name used to open the recipient's chat
func (r Recipient) ChatName() string {
	if r.ContactName != "" {
		return r.ContactName
	}
	return r.DisplayName
}

// Document is the full contents of the settings file
type Document struct {
	Version    int         `json:"version"`
	UpdatedTS  float64     `json:"updated_ts"`
	Schedule   Schedule    `json:"schedule"`
	Recipients []Recipient `json:"recipients"`
}

// Eligible returns the enabled recipients that have a contact, in directory order
func (d *Document) Eligible() []Recipient {
	var out []Recipient
	for _, r := range d.Recipients {
		if r.Eligible() {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the recipient with the given id
func (d *Document) Find(id string) (Recipient, bool) {
	for _, r := range d.Recipients {
		if r.ID == id {
			return r, true
		}
	}
	return Recipient{}, false
}

// EffectiveSchedule resolves a recipient's overrides against the global schedule
func EffectiveSchedule(r Recipient, global Schedule) (enabled bool, tz string, hhmm string) {
	enabled = global.Enabled
	if r.ScheduleEnabled != nil {
		enabled = *r.ScheduleEnabled
	}

	tz = global.TZ
	if tz == "" {
		tz = DefaultTZ
	}
	if r.ScheduleTZ != nil && *r.ScheduleTZ != "" {
		tz = *r.ScheduleTZ
	}

	hhmm = global.TimeHHMM
	if hhmm == "" {
		hhmm = DefaultTime
	}
	if r.ScheduleTime != nil && *r.ScheduleTime != "" {
		hhmm = *r.ScheduleTime
	}
	return enabled, tz, hhmm
}

// ParseHHMM splits a time of day. ok is false for anything but a valid H:M pair.
func ParseHHMM(v string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	hh, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	mm, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, false
	}
	return hh, mm, true
}

// NormalizeHHMM re-pads a valid time ("7:5" becomes "07:05"); anything else becomes 19:00
func NormalizeHHMM(v string) string {
	hh, mm, ok := ParseHHMM(v)
	if !ok {
		return DefaultTime
	}
	return fmt.Sprintf("%02d:%02d", hh, mm)
}

// NormalizePhone keeps digits only
func NormalizePhone(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
