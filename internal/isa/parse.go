// Package isa decodes ISA-5.1 instrument tags such as "PDIT-101" by letter
// position. It never calls out to a model.
package isa

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	separators   = regexp.MustCompile(`[\s_\-]+`)
	tagPattern   = regexp.MustCompile(`^([A-Z]{1,6})-?(\d{1,6})?([A-Z])?$`)
	loosePattern = regexp.MustCompile(`^[A-Z]{1,6}-?\d{0,6}[A-Z]?$`)
)

const (
	unknownVariableConfidence = 0.3
	noFunctionPenalty         = 0.2
	unknownLetterPenalty      = 0.1
)

type Function struct {
	Letter string `json:"letter"`
	Name   string `json:"name"`
}

// ParsedTag is derived from a tag string and never mutated afterwards.
type ParsedTag struct {
	Original         string     `json:"original"`
	Cleaned          string     `json:"cleaned"`
	MeasuredVariable string     `json:"measured_variable,omitempty"`
	VariableName     string     `json:"variable_name,omitempty"`
	Modifier         string     `json:"modifier,omitempty"`
	ModifierName     string     `json:"modifier_name,omitempty"`
	Functions        []Function `json:"functions"`
	UnknownLetters   []string   `json:"unknown_letters,omitempty"`
	LoopNumber       string     `json:"loop_number,omitempty"`
	Suffix           string     `json:"suffix,omitempty"`
	Description      string     `json:"description"`
	Confidence       float64    `json:"confidence"`
	Steps            []string   `json:"steps"`
}

// FunctionNames returns the function names in encounter order.
func (p ParsedTag) FunctionNames() []string {
	out := make([]string, 0, len(p.Functions))
	for _, f := range p.Functions {
		out = append(out, f.Name)
	}
	return out
}

// Letters is the letter run of the cleaned tag.
func (p ParsedTag) Letters() string {
	m := tagPattern.FindStringSubmatch(p.Cleaned)
	if m == nil {
		return ""
	}
	return m[1]
}

// Clean trims, uppercases and collapses separator runs to a single dash.
func Clean(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = separators.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Parse decodes raw into its positional parts. Malformed input yields a
// zero-confidence result, never a panic.
func Parse(raw string) ParsedTag {
	cleaned := Clean(raw)
	out := ParsedTag{Original: raw, Cleaned: cleaned, Functions: []Function{}}
	out.Steps = append(out.Steps, fmt.Sprintf("cleaned %q -> %q", raw, cleaned))

	m := tagPattern.FindStringSubmatch(cleaned)
	if m == nil {
		out.Description = "Invalid ISA tag format"
		out.Steps = append(out.Steps, "no tag pattern matched")
		return out
	}
	letters, loop, suffix := m[1], m[2], m[3]
	out.LoopNumber, out.Suffix = loop, suffix
	out.Steps = append(out.Steps, fmt.Sprintf("letters=%q loop=%q suffix=%q", letters, loop, suffix))

	first := letters[0]
	out.MeasuredVariable = string(first)
	name, ok := Lookup(first, PosVariable)
	if !ok {
		out.Description = "Unknown variable: " + string(first)
		out.Confidence = unknownVariableConfidence
		out.Steps = append(out.Steps, fmt.Sprintf("position 0: %q is not a measured variable", first))
		return out
	}
	out.VariableName = name
	out.Steps = append(out.Steps, fmt.Sprintf("position 0: %q = %s (variable)", first, name))

	next := 1
	if len(letters) > 1 {
		if mod, ok := Lookup(letters[1], PosModifier); ok {
			out.Modifier, out.ModifierName = string(letters[1]), mod
			next = 2
			out.Steps = append(out.Steps, fmt.Sprintf("position 1: %q = %s (modifier)", letters[1], mod))
		} else {
			out.Steps = append(out.Steps, fmt.Sprintf("position 1: %q is not a modifier", letters[1]))
		}
	}

	for i := next; i < len(letters); i++ {
		l := letters[i]
		fn, ok := Lookup(l, PosFunction)
		if !ok {
			out.UnknownLetters = append(out.UnknownLetters, string(l))
			out.Steps = append(out.Steps, fmt.Sprintf("position %d: %q unknown function, skipped", i, l))
			continue
		}
		out.Functions = append(out.Functions, Function{Letter: string(l), Name: fn})
		out.Steps = append(out.Steps, fmt.Sprintf("position %d: %q = %s (function)", i, l, fn))
	}

	parts := []string{out.VariableName}
	if out.ModifierName != "" {
		parts = append(parts, out.ModifierName)
	}
	parts = append(parts, out.FunctionNames()...)
	out.Description = strings.Join(parts, " ")

	conf := 1.0
	if len(letters) > 1 && len(out.Functions) == 0 {
		conf -= noFunctionPenalty
	}
	conf -= unknownLetterPenalty * float64(len(out.UnknownLetters))
	out.Confidence = clamp(conf)
	out.Steps = append(out.Steps, fmt.Sprintf("description %q confidence %.2f", out.Description, out.Confidence))
	return out
}

// ParseAll parses each tag in order.
func ParseAll(tags []string) []ParsedTag {
	out := make([]ParsedTag, 0, len(tags))
	for _, t := range tags {
		out = append(out, Parse(t))
	}
	return out
}

// LooksLikeTag is a cheap shape check; it does not consult the letter tables.
func LooksLikeTag(s string) bool {
	c := Clean(s)
	return c != "" && loosePattern.MatchString(c)
}

// Describe returns the human-readable description for tag.
func Describe(tag string) string {
	return Parse(tag).Description
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
