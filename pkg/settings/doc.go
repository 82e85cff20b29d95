// Package settings is the recipient directory: who receives what, and when.
//
// The settings file is shared with the dashboard, so both the file loader and
// FromPublic run the same lenient normalization. Unknown or malformed fields
// fall back to defaults instead of failing the load.
package settings
