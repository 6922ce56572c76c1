// Package interpolate renders {{placeholder}} variables in step subjects and
// bodies against recipient fields and campaign static values.
//
// Rendering never fails: placeholders that cannot be resolved are left in the
// output verbatim and reported to the caller. Placeholders that carry a
// Liquid filter pipe ({{ first_name | default: "there" }}) are evaluated by
// the Liquid engine with the same bindings.
package interpolate

import (
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// aliasGroups lists field names that refer to the same contact attribute.
// The first entry is the canonical name.
var aliasGroups = [][]string{
	{"company", "company_name", "organization", "account_name"},
	{"first_name", "firstname", "fname", "given_name"},
	{"last_name", "lastname", "lname", "surname", "family_name"},
	{"email", "email_address"},
	{"title", "job_title", "position"},
	{"website", "company_website", "domain"},
	{"phone", "phone_number"},
	{"city", "location"},
}

var aliasIndex = func() map[string][]string {
	idx := make(map[string][]string)
	for _, group := range aliasGroups {
		for _, name := range group {
			idx[name] = group
		}
	}
	return idx
}()

// Aliases returns the names equivalent to name, including name itself.
// Unknown names return a single-element slice.
func Aliases(name string) []string {
	if group, ok := aliasIndex[strings.ToLower(name)]; ok {
		return group
	}
	return []string{name}
}

// Renderer resolves placeholders. The zero value is not usable; call New.
type Renderer struct {
	engine *liquid.Engine
}

// New creates a Renderer with its own Liquid engine.
func New() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

var (
	defaultOnce     sync.Once
	defaultRenderer *Renderer
)

// Render renders template with the process-wide Renderer.
func Render(template string, fields, static map[string]string) (string, []string) {
	defaultOnce.Do(func() { defaultRenderer = New() })
	return defaultRenderer.Render(template, fields, static)
}

// Render replaces every {{name}} in template and returns the output together
// with the distinct unresolved names in order of first appearance.
// An unterminated "{{" is copied through literally.
func (r *Renderer) Render(template string, fields, static map[string]string) (string, []string) {
	var (
		out        strings.Builder
		unresolved []string
		seen       map[string]bool
	)
	report := func(name string) {
		if seen == nil {
			seen = make(map[string]bool)
		}
		if !seen[name] {
			seen[name] = true
			unresolved = append(unresolved, name)
		}
	}

	out.Grow(len(template))
	rest := template
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			out.WriteString(rest)
			break
		}
		closeAt := strings.Index(rest[open+2:], "}}")
		if closeAt < 0 {
			out.WriteString(rest)
			break
		}
		// A stray "{{" before the real opener is literal text.
		if nested := strings.LastIndex(rest[open+2:open+2+closeAt], "{{"); nested >= 0 {
			skip := open + 2 + nested
			out.WriteString(rest[:skip])
			rest = rest[skip:]
			continue
		}
		out.WriteString(rest[:open])
		raw := rest[open : open+2+closeAt+2]
		inner := strings.TrimSpace(rest[open+2 : open+2+closeAt])
		rest = rest[open+2+closeAt+2:]

		if strings.Contains(inner, "|") {
			value, name, ok := r.renderFiltered(raw, inner, fields, static)
			if !ok {
				out.WriteString(raw)
				if name != "" {
					report(name)
				}
				continue
			}
			out.WriteString(value)
			continue
		}

		if !isIdentifier(inner) {
			out.WriteString(raw)
			continue
		}
		if value, ok := resolve(inner, fields, static); ok {
			out.WriteString(value)
			continue
		}
		out.WriteString(raw)
		report(inner)
	}
	return out.String(), unresolved
}

// resolve looks name up in recipient fields, then through the alias table,
// then in static values. Empty values count as missing.
func resolve(name string, fields, static map[string]string) (string, bool) {
	if v := fields[name]; v != "" {
		return v, true
	}
	for _, alias := range Aliases(name) {
		if v := fields[alias]; v != "" {
			return v, true
		}
	}
	if v := static[name]; v != "" {
		return v, true
	}
	for _, alias := range Aliases(name) {
		if v := static[alias]; v != "" {
			return v, true
		}
	}
	return "", false
}

func (r *Renderer) renderFiltered(raw, inner string, fields, static map[string]string) (string, string, bool) {
	name := strings.TrimSpace(inner[:strings.Index(inner, "|")])
	if !isIdentifier(name) {
		return "", "", false
	}

	bindings := make(map[string]any, len(fields)+len(static)+1)
	for k, v := range static {
		bindings[k] = v
	}
	for k, v := range fields {
		bindings[k] = v
	}
	value, found := resolve(name, fields, static)
	if found {
		bindings[name] = value
	}

	out, err := r.engine.ParseAndRenderString(raw, bindings)
	if err != nil {
		return "", name, false
	}
	if !found && out == "" {
		return "", name, false
	}
	return out, name, true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_' || c == '-' || c == '.':
		default:
			return false
		}
	}
	return true
}
