package interpolate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name       string
		template   string
		fields     map[string]string
		static     map[string]string
		want       string
		unresolved []string
	}{
		{
			name:     "recipient field",
			template: "Hi {{first_name}},",
			fields:   map[string]string{"first_name": "Ada"},
			want:     "Hi Ada,",
		},
		{
			name:     "whitespace inside braces",
			template: "Hi {{ first_name }}!",
			fields:   map[string]string{"first_name": "Ada"},
			want:     "Hi Ada!",
		},
		{
			name:     "stray opener before a placeholder stays literal",
			template: "Hi {{ oops, {{first_name}} from {{company}}",
			fields:   map[string]string{"first_name": "Ann", "company_name": "Acme"},
			want:     "Hi {{ oops, Ann from Acme",
		},
		{
			name:       "several stray openers",
			template:   "{{ {{ {{missing}}",
			want:       "{{ {{ {{missing}}",
			unresolved: []string{"missing"},
		},
		{
			name:     "alias resolves company to company_name",
			template: "How is {{company}} doing?",
			fields:   map[string]string{"company_name": "Acme"},
			want:     "How is Acme doing?",
		},
		{
			name:     "alias resolves fname to first_name",
			template: "{{fname}}",
			fields:   map[string]string{"first_name": "Grace"},
			want:     "Grace",
		},
		{
			name:     "exact field wins over alias",
			template: "{{company}}",
			fields:   map[string]string{"company": "Exact", "company_name": "Alias"},
			want:     "Exact",
		},
		{
			name:     "static value after recipient fields",
			template: "From {{sender_name}}",
			static:   map[string]string{"sender_name": "Lin"},
			want:     "From Lin",
		},
		{
			name:     "recipient field beats static",
			template: "{{first_name}}",
			fields:   map[string]string{"first_name": "Ada"},
			static:   map[string]string{"first_name": "Fallback"},
			want:     "Ada",
		},
		{
			name:       "unresolved left verbatim and reported once",
			template:   "{{missing}} and {{ missing }} and {{other}}",
			want:       "{{missing}} and {{ missing }} and {{other}}",
			unresolved: []string{"missing", "other"},
		},
		{
			name:       "empty field is unresolved",
			template:   "Hi {{first_name}}",
			fields:     map[string]string{"first_name": ""},
			want:       "Hi {{first_name}}",
			unresolved: []string{"first_name"},
		},
		{
			name:     "unterminated opener is literal",
			template: "Hi {{first_name}}, see {{ broken",
			fields:   map[string]string{"first_name": "Ada"},
			want:     "Hi Ada, see {{ broken",
		},
		{
			name:     "empty placeholder is literal",
			template: "a {{}} b",
			want:     "a {{}} b",
		},
		{
			name:     "no placeholders",
			template: "plain text",
			want:     "plain text",
		},
		{
			name:     "filter with default on missing field",
			template: `Hi {{ first_name | default: "there" }}`,
			want:     "Hi there",
		},
		{
			name:     "filter on present field",
			template: `{{ company | upcase }}`,
			fields:   map[string]string{"company_name": "acme"},
			want:     "ACME",
		},
		{
			name:       "filter on missing field without default",
			template:   `{{ title | upcase }}`,
			want:       `{{ title | upcase }}`,
			unresolved: []string{"title"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unresolved := Render(tt.template, tt.fields, tt.static)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.unresolved, unresolved)
		})
	}
}

func TestRender_NilMapsNeverPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		out, unresolved := Render("{{a}}{{", nil, nil)
		assert.Equal(t, "{{a}}{{", out)
		assert.Equal(t, []string{"a"}, unresolved)
	})
}

func TestAliases(t *testing.T) {
	assert.Contains(t, Aliases("company_name"), "company")
	assert.Equal(t, []string{"favorite_color"}, Aliases("favorite_color"))
}
