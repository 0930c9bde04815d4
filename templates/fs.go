// Package templates embeds the HTML templates for the web interface.
package templates

import "embed"

//go:embed layouts/*.gohtml pages/*.gohtml
var FS embed.FS
