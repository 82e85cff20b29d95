// Package state keeps the delivery record that prevents duplicate sends.
//
// Two dedupe domains live side by side. SentByRecipient is authoritative: an
// item is offered to a recipient only if its id is absent from that
// recipient's set. SentIDs is a global audit trail that only ever grows.
//
// The state file is rewritten after every delivered item, so a crash between
// two deliveries loses at most the item in flight. Writes go through a
// temporary file that is synced and renamed over the old one; a reader never
// observes a half-written document. Load never fails: anything it cannot
// parse is treated as an empty state.
package state
