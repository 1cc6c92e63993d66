// Package schemas embeds the JSON schemas for the bootstrap API.
package schemas

import "embed"

//go:embed *.json
var FS embed.FS
