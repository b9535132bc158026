// Package schemas embeds the JSON Schemas describing the run artifacts.
package schemas

import "embed"

// Schema file names.
const (
	Identities = "identities.schema.json"
	Processed  = "processed.schema.json"
	Invalid    = "invalid.schema.json"
)

//go:embed *.schema.json
var files embed.FS

// Read returns the raw schema document.
func Read(name string) ([]byte, error) {
	return files.ReadFile(name)
}

// Names lists every embedded schema.
func Names() []string {
	return []string{Identities, Processed, Invalid}
}
