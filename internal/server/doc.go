// Package server is the local dashboard API: read and edit recipient
// settings, preview the schedule, inspect delivery state and scrape metrics.
package server
