// Package relay runs the Instagram to WhatsApp cycle.
//
// A run moves through fixed phases: init, fetch items, filter to the
// freshness window, plan per recipient, download each unique item once,
// deliver per recipient and finalize. State is saved after every delivered
// item, so a crash part way through never causes an item to be sent twice to
// the same recipient.
//
// Dedupe is per recipient. An item delivered to one recipient is still due
// for every other recipient that wants it.
package relay
