// Package schedule decides when relay runs happen.
//
// Every eligible recipient runs once a day at its effective time, in its
// effective timezone; per-recipient overrides fall back to the global
// schedule, and invalid values fall back to 19:00 Europe/Berlin. Next-run
// times come from gronx over the equivalent cron expression. Daemon
// registers one gocron job per recipient plus the weekly unfollow check and
// rebuilds the recipient jobs whenever the settings file changes.
package schedule
