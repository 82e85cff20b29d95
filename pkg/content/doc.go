// Package content defines the normalized post and story items that flow
// through a relay run, independent of the source that produced them.
package content
