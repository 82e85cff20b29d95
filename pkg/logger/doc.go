// Package logger provides the structured logging interface used across the relay.
//
// It wraps zerolog with a small interface so packages can attach fields
// (run_id, recipient_id, item_id) without depending on zerolog directly.
//
//	logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("run_id", runID)
//	log.InfoWithFields("Delivery confirmed", map[string]interface{}{
//	    "recipient_id": "mom",
//	    "item_id":      "post:123",
//	})
//
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
