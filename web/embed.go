// Package web embeds the dashboard's templates and static files.
package web

import "embed"

// TemplatesFS holds the page templates, parsed once at server start.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and scripts served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
