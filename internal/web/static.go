package web

import (
	"embed"
)

// staticFiles holds the embedded operator page.
//
//go:embed static/*
var staticFiles embed.FS
