package validation

import "regexp"

const (
	ColorFieldThemeBackground = "theme_bg_color"
	ColorFieldThemeShade      = "theme_shade_color"
	ColorFieldBrandAccent     = "brand_accent"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ColorFields lists the touchpoint fields that must hold #RRGGBB values.
var ColorFields = []string{
	ColorFieldThemeBackground,
	ColorFieldThemeShade,
	ColorFieldBrandAccent,
}

// IsValidHex reports whether value is a six digit #RRGGBB color.
func IsValidHex(value string) bool {
	return hexColorPattern.MatchString(value)
}

// SanitizeHex returns value when it is a valid color and fallback otherwise.
// Every color written into a style attribute goes through here.
func SanitizeHex(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	if IsValidHex(value) {
		return value
	}
	return fallback
}
