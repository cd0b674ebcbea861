package archive

import (
	"fmt"
	"regexp"
	"time"
)

// TodayVar is the builtin variable every substitution context carries.
const TodayVar = "today"

// DefaultTodayFormat is the UTC date layout used for the today variable.
const DefaultTodayFormat = "2006-01-02"

// placeholderRe matches ${name} and, tolerated for backward compatibility
// with older documents, bare {name}.
var placeholderRe = regexp.MustCompile(`\$?\{([^}]+)\}`)

// Lookup resolves a variable name to its string form.
type Lookup interface {
	Lookup(name string) (string, bool)
}

// Substitute replaces every placeholder in template with its value from
// vars. An unresolved name is left verbatim rather than failing, so a
// partially specified template stays diagnosable in dry-run output.
func Substitute(template string, vars Lookup) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := vars.Lookup(name); ok {
			return value
		}
		return match
	})
}

// Today formats the run's as-of instant in UTC. The instant is computed
// once at run start and threaded through explicitly, so a run's expansion
// is reproducible given a fixed as-of time.
func Today(asOf time.Time, format string) string {
	if format == "" {
		format = DefaultTodayFormat
	}
	return asOf.UTC().Format(format)
}

// stringify renders a scalar definition value the way a template expects
// it. Lists never reach this point; they are expanded into axes first.
func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprintf("%v", value)
	}
}
