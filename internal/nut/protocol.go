package nut

import (
	"errors"
	"strings"
)

var errUnterminatedQuote = errors.New("unterminated quoted string")

// splitFields splits a protocol line on spaces. Double-quoted fields may
// contain spaces and backslash-escaped quotes or backslashes.
func splitFields(line string) ([]string, error) {
	var (
		fields []string
		cur    strings.Builder
		inQ    bool
		esc    bool
		have   bool
	)
	for _, r := range line {
		switch {
		case esc:
			cur.WriteRune(r)
			esc = false
		case r == '\\' && inQ:
			esc = true
		case r == '"':
			inQ = !inQ
			have = true
		case r == ' ' && !inQ:
			if have {
				fields = append(fields, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteRune(r)
			have = true
		}
	}
	if inQ || esc {
		return nil, errUnterminatedQuote
	}
	if have {
		fields = append(fields, cur.String())
	}
	return fields, nil
}

// quote renders s as a protocol string argument.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
