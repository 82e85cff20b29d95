// Package whatsapp is the delivery channel: an HTTP client for a local
// WhatsApp Web bridge that owns the browser session.
//
// The bridge exposes five calls: start and stop the session, open a chat by
// contact name or phone, upload a media batch with a caption, and send a
// text. A session the browser lost comes back as a session_closed error so
// the relay can restart the channel and carry on.
package whatsapp
