// Package schema turns a named schema into, per bundle slot, the set
// of KSK inventory identifiers to publish, to publish with the REVOKE
// bit set, and to sign with (spec §4.6). The four base phases —
// normal, pre-publish, rollover, revoke — and their "+" extensions are
// static, parameterized only by which inventory identifiers play the
// role of "current" and "next" KSK.
package schema

import "fmt"

// Slot is one bundle's schema-derived instruction.
type Slot struct {
	Publish []string `mapstructure:"publish"`
	Revoke  []string `mapstructure:"revoke"`
	Sign    []string `mapstructure:"sign"`
}

// Params names the KSK identifiers a schema's phases refer to. Next is
// unused (and may be empty) by the normal schema, which never
// publishes a second key.
type Params struct {
	Current    string
	Next       string
	NumBundles int // defaults to 9, the standard root-zone cycle length
}

func (p Params) numBundles() int {
	if p.NumBundles > 0 {
		return p.NumBundles
	}
	return 9
}

// basePattern is the canonical (non-extended) slot sequence for a
// phase, exactly as it applies to a standard 9-bundle cycle. Index 0
// is bundle 1.
type basePattern func(p Params) []Slot

var basePatterns = map[string]basePattern{
	"normal": func(p Params) []Slot {
		return repeat(Slot{Publish: []string{p.Current}, Sign: []string{p.Current}}, 9)
	},
	"pre-publish": func(p Params) []Slot {
		slots := []Slot{{Publish: []string{p.Current}, Sign: []string{p.Current}}}
		slots = append(slots, repeat(Slot{Publish: []string{p.Current, p.Next}, Sign: []string{p.Current}}, 8)...)
		return slots
	},
	"rollover": func(p Params) []Slot {
		slots := []Slot{{Publish: []string{p.Current, p.Next}, Sign: []string{p.Current}}}
		slots = append(slots, repeat(Slot{Publish: []string{p.Current, p.Next}, Sign: []string{p.Next}}, 8)...)
		return slots
	},
	"revoke": func(p Params) []Slot {
		slots := []Slot{{Publish: []string{p.Current}, Sign: []string{p.Current}}}
		slots = append(slots, repeat(Slot{
			Publish: []string{p.Current, p.Next},
			Revoke:  []string{p.Current},
			Sign:    []string{p.Current, p.Next},
		}, 7)...)
		slots = append(slots, Slot{Publish: []string{p.Next}, Sign: []string{p.Next}})
		return slots
	},
}

func repeat(s Slot, n int) []Slot {
	out := make([]Slot, n)
	for i := range out {
		out[i] = s
	}
	return out
}

// isPlus reports whether name is the "+" extension of a base phase,
// and returns the base phase name.
func isPlus(name string) (base string, plus bool) {
	if len(name) > 1 && name[len(name)-1] == '+' {
		return name[:len(name)-1], true
	}
	return name, false
}

// Build returns the slot table for the named schema under params. A
// "+" schema reuses its base phase's pattern but, when params.NumBundles
// exceeds the base pattern's length, extends the cycle by repeating
// the base pattern's last slot — "extending the current phase without
// advancing" (spec §6) rather than erroring on an out-of-range slot. A
// base (non-+) schema requires params.NumBundles to equal the base
// pattern's length exactly.
func Build(name string, params Params) ([]Slot, error) {
	base, plus := isPlus(name)
	pattern, ok := basePatterns[base]
	if !ok {
		return nil, fmt.Errorf("schema: unknown schema %q", name)
	}
	slots := pattern(params)
	n := params.numBundles()

	if !plus {
		if n != len(slots) {
			return nil, fmt.Errorf("schema: %q requires exactly %d bundles, got %d", name, len(slots), n)
		}
		return slots, nil
	}

	if n <= len(slots) {
		return slots[:n], nil
	}
	extended := make([]Slot, n)
	copy(extended, slots)
	last := slots[len(slots)-1]
	for i := len(slots); i < n; i++ {
		extended[i] = last
	}
	return extended, nil
}

// Names lists every schema this package recognizes, base and "+"
// variants alike.
func Names() []string {
	names := make([]string, 0, len(basePatterns)*2)
	for base := range basePatterns {
		names = append(names, base, base+"+")
	}
	return names
}
