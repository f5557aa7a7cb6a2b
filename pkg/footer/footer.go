package footer

import (
	"bytes"
	"html/template"
	"strings"
)

const (
	DefaultElementID  = "ez-footer"
	DefaultBaseClass  = "ez-footer"
	DefaultPrefixText = "Powered by"
	DefaultBrandLabel = "EZinfo"
)

// Link describes an extra navigation entry rendered after the brand.
type Link struct {
	Label string
	URL   string
}

// Config captures the markup hooks and text of the attribution footer.
type Config struct {
	ElementID  string
	BaseClass  string
	PrefixText string
	BrandLabel string
	BrandURL   string
	Links      []Link
}

var footerTemplate = template.Must(template.New("footer").Option("missingkey=error").Parse(`<footer id="{{.ElementID}}" class="{{.BaseClass}}">
  <span class="{{.BaseClass}}__prefix">{{.PrefixText}}</span>
  {{- if .BrandURL}}
  <a class="{{.BaseClass}}__brand" href="{{.BrandURL}}" target="_blank" rel="noopener noreferrer">{{.BrandLabel}}</a>
  {{- else}}
  <span class="{{.BaseClass}}__brand">{{.BrandLabel}}</span>
  {{- end}}
  {{- if .Links}}
  <nav class="{{.BaseClass}}__links">
    {{- range .Links}}
    <a href="{{.URL}}" target="_blank" rel="noopener noreferrer">{{.Label}}</a>
    {{- end}}
  </nav>
  {{- end}}
</footer>`))

// Render returns the footer HTML. Empty fields fall back to the "Powered by EZinfo" defaults.
func Render(config Config) (template.HTML, error) {
	var buffer bytes.Buffer
	if err := footerTemplate.Execute(&buffer, withDefaults(config)); err != nil {
		return "", err
	}
	return template.HTML(buffer.String()), nil
}

func withDefaults(config Config) Config {
	if strings.TrimSpace(config.ElementID) == "" {
		config.ElementID = DefaultElementID
	}
	if strings.TrimSpace(config.BaseClass) == "" {
		config.BaseClass = DefaultBaseClass
	}
	if strings.TrimSpace(config.PrefixText) == "" {
		config.PrefixText = DefaultPrefixText
	}
	if strings.TrimSpace(config.BrandLabel) == "" {
		config.BrandLabel = DefaultBrandLabel
	}
	return config
}
