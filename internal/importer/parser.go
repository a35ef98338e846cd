package importer

// parser.go implements the delimited-text parser. It deliberately does not use
// encoding/csv: rows are physical lines, blank lines are dropped, fields are
// trimmed, and malformed quoting degrades gracefully (an unterminated quote
// consumes to end of line) instead of raising.

import (
	"errors"
	"strings"
)

// ErrEmptyInput is returned when the file has no rows after blank-line removal.
var ErrEmptyInput = errors.New("empty file")

// utf8BOM is prepended to exported CSV for spreadsheet round-trip
// compatibility. It is stripped from input but never required.
const utf8BOM = "\ufeff"

// ParseDelimited splits raw file text into rows of trimmed fields.
// The first row is the header candidate; whether it is treated as a header
// is the caller's decision.
func ParseDelimited(text string) ([][]string, error) {
	text = strings.TrimPrefix(text, utf8BOM)

	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, splitLine(line))
	}

	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}
	return rows, nil
}

// splitLine parses one line into fields. Single pass, one character of
// lookahead: a doubled quote inside a quoted region emits one literal quote,
// a lone quote toggles the quoted state, and commas split only outside quotes.
func splitLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}

// EscapeField applies the inverse quoting rule: fields containing commas,
// quotes or newlines are wrapped in quotes with embedded quotes doubled.
func EscapeField(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// MarshalRows serializes rows as BOM-prefixed CSV text.
func MarshalRows(rows [][]string) []byte {
	var b strings.Builder
	b.WriteString(utf8BOM)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(EscapeField(cell))
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
