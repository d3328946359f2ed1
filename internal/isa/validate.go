package isa

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var areaPrefix = regexp.MustCompile(`^(\d+)-(.+)$`)

// Validation is the rule-check outcome for one tag. Issues make a tag
// invalid; warnings and recommendations do not.
type Validation struct {
	Tag             string    `json:"tag"`
	Area            string    `json:"area,omitempty"`
	Valid           bool      `json:"valid"`
	Parsed          ParsedTag `json:"parsed"`
	Issues          []string  `json:"issues"`
	Warnings        []string  `json:"warnings"`
	Recommendations []string  `json:"recommendations"`
}

// Validate parses tag (tolerating a numeric area prefix like "10-TIC-101A")
// and applies the ISA-5.1 logic checks.
func Validate(tag string) Validation {
	v := Validation{Tag: tag, Issues: []string{}, Warnings: []string{}, Recommendations: []string{}}
	body := Clean(tag)
	if m := areaPrefix.FindStringSubmatch(body); m != nil && tagPattern.MatchString(m[2]) {
		v.Area, body = m[1], m[2]
	}
	p := Parse(body)
	p.Original = tag
	v.Parsed = p

	switch {
	case p.Confidence == 0:
		v.Issues = append(v.Issues, "tag format invalid, expected [AREA-]LETTERS-LOOP[SUFFIX]")
	case p.VariableName == "":
		v.Issues = append(v.Issues, fmt.Sprintf("invalid variable %q", p.MeasuredVariable))
	}
	for _, l := range p.UnknownLetters {
		v.Issues = append(v.Issues, fmt.Sprintf("invalid function letter %q", l))
	}

	if len(v.Issues) == 0 {
		fn := functionLetters(p)
		if strings.Contains(fn, "C") && !strings.Contains(fn, "V") {
			v.Warnings = append(v.Warnings, "controller (C) without a valve/damper (V) in the same tag")
		}
		if strings.Contains(fn, "S") && !strings.ContainsAny(fn, "HL") {
			v.Warnings = append(v.Warnings, "switch (S) without a high/low setpoint (H/L)")
		}
		if len(p.Letters()) == 1 {
			v.Recommendations = append(v.Recommendations,
				fmt.Sprintf("ambiguous tag %q, consider adding function letters such as I", p.Letters()))
		}
		if p.LoopNumber == "" {
			v.Recommendations = append(v.Recommendations, "missing loop number")
		} else if n, err := strconv.Atoi(p.LoopNumber); err == nil && n > 0 && n < 100 {
			v.Recommendations = append(v.Recommendations, "loop numbers conventionally start at 100")
		}
	}
	v.Valid = len(v.Issues) == 0
	return v
}

// ValidateAll validates each tag in order.
func ValidateAll(tags []string) []Validation {
	out := make([]Validation, 0, len(tags))
	for _, t := range tags {
		out = append(out, Validate(t))
	}
	return out
}

// FindDuplicates returns cleaned tags that occur more than once, in order of
// their second occurrence.
func FindDuplicates(tags []string) []string {
	seen := make(map[string]int, len(tags))
	var dups []string
	for _, t := range tags {
		c := Clean(t)
		if c == "" {
			continue
		}
		seen[c]++
		if seen[c] == 2 {
			dups = append(dups, c)
		}
	}
	return dups
}

func functionLetters(p ParsedTag) string {
	var b strings.Builder
	for _, f := range p.Functions {
		b.WriteString(f.Letter)
	}
	return b.String()
}
