// Package web contains embedded assets for the built-in cache console UI.
package web

import "embed"

// Assets contains the embedded HTML for the console page.
//
//go:embed *.html
var Assets embed.FS
