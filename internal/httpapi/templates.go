package httpapi

import _ "embed"

//go:embed templates/touchpoint.tmpl
var touchpointTemplateHTML string
