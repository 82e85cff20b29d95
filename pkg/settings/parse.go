package settings

import (
	"strconv"
	"strings"

	errs "instabridge/pkg/errors"
)

// FromPublic parses a dashboard payload into a normalized document.
// Payloads that are not JSON objects are rejected.
func FromPublic(data any) (*Document, error) {
	raw, ok := data.(map[string]any)
	if !ok {
		return nil, errs.New(errs.ErrorTypeValidation, "settings payload must be an object")
	}
	doc := parseDocument(raw)
	doc.Version = currentVersion
	doc.UpdatedTS = 0
	return doc, nil
}

// ToPublic returns the wire shape served to the dashboard
func ToPublic(doc *Document) Document {
	if doc == nil {
		return Document{Version: currentVersion, Schedule: DefaultSchedule(), Recipients: []Recipient{}}
	}
	out := *doc
	out.Recipients = append([]Recipient{}, doc.Recipients...)
	return out
}

// parseDocument applies the normalization rules shared by the file loader and
// the dashboard. Entries that are not objects are skipped, as are empty and
// duplicate ids; the first occurrence of an id wins.
func parseDocument(raw map[string]any) *Document {
	doc := &Document{
		Version:    currentVersion,
		Schedule:   parseSchedule(raw["schedule"]),
		Recipients: []Recipient{},
	}

	if v, ok := raw["version"].(float64); ok && v != 0 {
		doc.Version = int(v)
	}
	if v, ok := raw["updated_ts"].(float64); ok {
		doc.UpdatedTS = v
	}

	list, _ := raw["recipients"].([]any)
	seen := make(map[string]bool, len(list))
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		r, ok := parseRecipient(obj)
		if !ok || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		doc.Recipients = append(doc.Recipients, r)
	}
	return doc
}

func parseSchedule(v any) Schedule {
	s := DefaultSchedule()
	obj, ok := v.(map[string]any)
	if !ok {
		return s
	}
	s.Enabled = boolOr(obj["enabled"], true)
	if tz := str(obj["tz"]); tz != "" {
		s.TZ = tz
	}
	s.TimeHHMM = NormalizeHHMM(str(obj["time_hhmm"]))
	return s
}

func parseRecipient(obj map[string]any) (Recipient, bool) {
	id := strings.TrimSpace(str(obj["id"]))
	if id == "" {
		return Recipient{}, false
	}

	contact := strings.TrimSpace(str(obj["wa_contact_name"]))
	display := strings.TrimSpace(str(obj["display_name"]))
	if display == "" {
		display = contact
	}
	if display == "" {
		display = id
	}

	r := Recipient{
		ID:                      id,
		DisplayName:             display,
		ContactName:             contact,
		Phone:                   NormalizePhone(str(obj["wa_phone"])),
		Enabled:                 boolOr(obj["enabled"], true),
		SendPosts:               boolOr(obj["send_posts"], true),
		SendStories:             boolOr(obj["send_stories"], true),
		SendCloseFriendsStories: boolOr(obj["send_close_friends_stories"], false),
	}

	if v, present := obj["schedule_enabled"]; present && v != nil {
		b := boolOr(v, true)
		r.ScheduleEnabled = &b
	}
	if v, present := obj["schedule_tz"]; present && v != nil {
		tz := str(v)
		r.ScheduleTZ = &tz
	}
	if v, present := obj["schedule_time_hhmm"]; present && v != nil {
		t := NormalizeHHMM(str(v))
		r.ScheduleTime = &t
	}
	return r, true
}

// boolOr accepts only real booleans; anything else yields def
func boolOr(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// str renders a decoded JSON scalar. Falsy values (null, false, 0, "") become "".
func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
		return "true"
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
