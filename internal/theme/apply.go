package theme

import (
	"sort"
	"strings"

	"github.com/spectra-gallery/spectra/internal/model"
)

const (
	// Attribute is set on the root element to the active theme name.
	Attribute = "data-theme"
	// StyleSlotID names the single style element holding the generated rule.
	StyleSlotID = "dynamic-theme-styles"
)

// Document is the presentation surface a theme is applied to.
type Document interface {
	// SetRootAttribute sets an attribute on the root <html> element.
	SetRootAttribute(name, value string)
	// ReplaceStyle sets the text of the style element with id, creating it in
	// <head> when missing.
	ReplaceStyle(id, css string)
}

// Application is how a theme name lands on a document: either with a
// generated rule (ConfiguredTheme) or with the attribute alone
// (AttributeOnlyTheme).
type Application interface {
	ThemeName() string
	Apply(doc Document)
}

// ConfiguredTheme is a theme with a server palette.
type ConfiguredTheme struct {
	Name      string
	Variables map[string]string
}

// AttributeOnlyTheme is a theme the config has no entry for, or any theme
// while no config is loaded.
type AttributeOnlyTheme struct {
	Name string
}

// Resolve picks the application variant for name under cfg.
func Resolve(name string, cfg *model.ThemeConfig) Application {
	if palette, ok := cfg.Palette(name); ok {
		return ConfiguredTheme{Name: name, Variables: palette}
	}
	return AttributeOnlyTheme{Name: name}
}

// ThemeName implements Application.
func (c ConfiguredTheme) ThemeName() string { return c.Name }

// ThemeName implements Application.
func (a AttributeOnlyTheme) ThemeName() string { return a.Name }

// Apply replaces the style slot with the theme rule, then sets the attribute.
func (c ConfiguredTheme) Apply(doc Document) {
	if doc == nil {
		return
	}
	doc.ReplaceStyle(StyleSlotID, c.Rule())
	doc.SetRootAttribute(Attribute, c.Name)
}

// Apply sets the attribute and leaves any style slot untouched.
func (a AttributeOnlyTheme) Apply(doc Document) {
	if doc == nil {
		return
	}
	doc.SetRootAttribute(Attribute, a.Name)
}

// Rule renders the palette as one CSS rule scoped to the theme name:
//
//	html[data-theme="light"] {
//	  --bg-color: #fff;
//	}
func (c ConfiguredTheme) Rule() string {
	keys := make([]string, 0, len(c.Variables))
	for key := range c.Variables {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`html[data-theme="`)
	b.WriteString(cssString(c.Name))
	b.WriteString("\"] {\n")
	for _, key := range keys {
		b.WriteString("  ")
		b.WriteString(VariableName(key))
		b.WriteString(": ")
		b.WriteString(c.Variables[key])
		b.WriteString(";\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// VariableName maps a config key such as "bg_color" to "--bg-color".
func VariableName(key string) string {
	return "--" + strings.ReplaceAll(key, "_", "-")
}

func cssString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
