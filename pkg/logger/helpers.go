package logger

import (
	"time"

	"github.com/dustin/go-humanize"
)

// LogRunPhase records a transition of the relay run state machine
func LogRunPhase(l Logger, phase string, fields map[string]interface{}) {
	if l == nil {
		l = GetLogger()
	}
	merged := map[string]interface{}{"phase": phase}
	for k, v := range fields {
		merged[k] = v
	}
	l.InfoWithFields("run phase", merged)
}

// LogDownload logs the outcome of materializing one item
func LogDownload(l Logger, itemID string, files int, bytes int64, err error) {
	if l == nil {
		l = GetLogger()
	}
	fields := map[string]interface{}{
		"item_id": itemID,
		"files":   files,
	}
	if bytes > 0 {
		fields["size"] = humanize.Bytes(uint64(bytes))
	}

	if err != nil {
		l.WithError(err).WarnWithFields("Download failed", fields)
		return
	}
	l.InfoWithFields("Download completed", fields)
}

// LogDelivery logs the outcome of sending one item to one recipient
func LogDelivery(l Logger, recipientID, itemID string, files int, err error) {
	if l == nil {
		l = GetLogger()
	}
	fields := map[string]interface{}{
		"recipient_id": recipientID,
		"item_id":      itemID,
		"files":        files,
	}

	if err != nil {
		l.WithError(err).ErrorWithFields("Delivery failed", fields)
		return
	}
	l.InfoWithFields("Delivery confirmed", fields)
}

// LogRateLimit logs rate limiting events
func LogRateLimit(l Logger, endpoint string, retryAfter time.Duration) {
	if l == nil {
		l = GetLogger()
	}
	l.WithFields(map[string]interface{}{
		"endpoint":    endpoint,
		"retry_after": retryAfter,
		"resume_at":   humanize.Time(time.Now().Add(retryAfter)),
	}).Warn("Rate limit reached, backing off")
}
