package server

import "embed"

//go:embed views/*.django
var viewsFS embed.FS
