package archive

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// baseKey is the reserved definition that is itself a template, resolved
// per axis combination before being exposed as the ${base} variable.
const baseKey = "base"

// ExpandOptions carries the run-scoped inputs of an expansion. AsOf is
// computed once at run start so that two expansions with the same options
// produce identical entries.
type ExpandOptions struct {
	AsOf        time.Time
	TodayFormat string
	GroupBy     string
}

// Expand produces the full combinatorial entry set for a definition set
// and its targets. Definition-set axes and per-target axes compose: a
// target with n own combinations under m definition-set combinations
// yields m*n entries. Output order is deterministic: axis names iterate
// sorted, axis values in document order, targets in document order.
func Expand(defs Definitions, targets []Target, opts ExpandOptions) ([]Entry, error) {
	fixed, axes := partitionDefs(defs)

	builtins := Layer{Name: "builtins", Vars: map[string]string{
		TodayVar: Today(opts.AsOf, opts.TodayFormat),
	}}
	defsLayer := Layer{Name: "definitions", Vars: fixed}

	var entries []Entry
	for _, defCombo := range combinations(axes) {
		outer, err := NewContext(builtins, defsLayer, Layer{Name: "definition-axes", Vars: defCombo})
		if err != nil {
			return nil, err
		}

		// base may reference an axis variable, so it is re-resolved once
		// per definition-set combination, not once globally.
		if raw, ok := defs[baseKey].(string); ok {
			resolved := Substitute(raw, outer)
			outer, err = outer.With(Layer{Name: "base", Vars: map[string]string{baseKey: resolved}})
			if err != nil {
				return nil, err
			}
		}

		for _, target := range targets {
			expanded, err := expandTarget(target, outer, opts.GroupBy)
			if err != nil {
				return nil, err
			}
			entries = append(entries, expanded...)
		}
	}
	return entries, nil
}

func expandTarget(target Target, outer *Context, groupBy string) ([]Entry, error) {
	fixed, axes := partitionVars(target.Vars, nil)

	var entries []Entry
	for _, combo := range combinations(axes) {
		ctx, err := outer.With(
			Layer{Name: "target", Vars: fixed},
			Layer{Name: "target-axes", Vars: combo},
		)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", target.URL, err)
		}
		entry := Entry{
			Destination: Substitute(target.Destination, ctx),
			URL:         Substitute(target.URL, ctx),
		}
		if groupBy != "" {
			entry.Tag, _ = ctx.Lookup(groupBy)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// partitionDefs splits a definition set into fixed variables and axes.
// List-valued definition names expose a singular variable, so a document
// can declare `langs: [go, rust]` and templates reference ${lang}.
func partitionDefs(defs Definitions) (map[string]string, map[string][]string) {
	return partitionVars(defs, singularize)
}

func partitionVars(vars map[string]any, rename func(string) string) (map[string]string, map[string][]string) {
	fixed := make(map[string]string, len(vars))
	axes := make(map[string][]string)
	for name, value := range vars {
		if name == baseKey {
			continue
		}
		if list, ok := value.([]any); ok {
			axis := make([]string, len(list))
			for i, item := range list {
				axis[i] = stringify(item)
			}
			if rename != nil {
				name = rename(name)
			}
			axes[name] = axis
			continue
		}
		if list, ok := value.([]string); ok {
			if rename != nil {
				name = rename(name)
			}
			axes[name] = list
			continue
		}
		fixed[name] = stringify(value)
	}
	return fixed, axes
}

func singularize(name string) string {
	if len(name) > 1 && strings.HasSuffix(name, "s") {
		return name[:len(name)-1]
	}
	return name
}

// combinations computes the Cartesian product of the axes, one binding
// map per point. No axes yields exactly one empty combination; an axis
// with zero values yields zero combinations (a legal degenerate case).
func combinations(axes map[string][]string) []map[string]string {
	names := make([]string, 0, len(axes))
	for name := range axes {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]string{{}}
	for _, name := range names {
		values := axes[name]
		next := make([]map[string]string, 0, len(combos)*len(values))
		for _, combo := range combos {
			for _, value := range values {
				extended := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					extended[k] = v
				}
				extended[name] = value
				next = append(next, extended)
			}
		}
		combos = next
	}
	return combos
}
