package engine

import (
	"regexp"

	"github.com/brianvoe/gofakeit/v6"
)

// placeholderPattern matches {{token}} or {{token:arg}} placeholders, the
// same double-brace convention the teacher's fixture loader used for
// {{uuid}}/{{name}}/{{email}} substitution.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)(?::([^}]*))?\s*\}\}`)

// TemplateFaker expands gofakeit placeholders inside a stored fixture. It is
// opt-in per handler/fixture — the raw filesystem-echo path (C8's GET) never
// calls this, preserving "stream as-is" for plain resources.
type TemplateFaker struct {
	faker *gofakeit.Faker
}

// NewTemplateFaker builds a faker with its own randomly seeded source
// (gofakeit.New(0)); its output differs from run to run, and seeding gofakeit
// globally does not affect it.
func NewTemplateFaker() *TemplateFaker {
	return &TemplateFaker{faker: gofakeit.New(0)}
}

// Expand walks a decoded JSON value and rewrites every string scalar that
// matches a placeholder, leaving structure (maps/arrays/numbers/bools)
// otherwise untouched.
func (t *TemplateFaker) Expand(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return t.expandString(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			out[k] = t.Expand(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, vv := range val {
			out[i] = t.Expand(vv)
		}
		return out
	default:
		return v
	}
}

func (t *TemplateFaker) expandString(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		token := groups[1]
		arg := groups[2]
		switch token {
		case "uuid":
			return t.faker.UUID()
		case "name":
			return t.faker.Name()
		case "email":
			return t.faker.Email()
		case "word":
			return t.faker.Word()
		case "sentence":
			return t.faker.Sentence(5)
		case "number":
			return t.faker.DigitN(numOrDefault(arg, 4))
		case "bool":
			if t.faker.Bool() {
				return "true"
			}
			return "false"
		case "date":
			return t.faker.Date().Format("2006-01-02")
		default:
			return match
		}
	})
}

func numOrDefault(arg string, def uint) uint {
	if arg == "" {
		return def
	}
	n := uint(0)
	for _, c := range arg {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + uint(c-'0')
	}
	if n == 0 {
		return def
	}
	return n
}
