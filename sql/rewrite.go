package sql

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/nickyhof/dbaccess/core"
)

// Normalize rewrites every placeholder into the marker style of an engine.
// Named placeholders lose their names; binding is positional from here on.
func Normalize(query string, style MarkerStyle) string {
	var builder strings.Builder
	builder.Grow(len(query))
	ordinal := 0
	for _, token := range tokenize(query) {
		if !token.IsPlaceholder() {
			builder.WriteString(token.Value)
			continue
		}
		ordinal++
		builder.WriteString(marker(style, ordinal))
	}
	return builder.String()
}

func marker(style MarkerStyle, ordinal int) string {
	if style == DollarNumbers {
		return "$" + strconv.Itoa(ordinal)
	}
	return "?"
}

// Inline substitutes values for the placeholders of query, producing
// literal SQL for engines that execute without prepared statements.
func Inline(query string, values []core.Value) (string, error) {
	tokens := tokenize(query)
	expected := 0
	for _, token := range tokens {
		if token.IsPlaceholder() {
			expected++
		}
	}
	if expected != len(values) {
		return "", fmt.Errorf("Incorrect bind count. Query expects %d but the number of values is %d",
			expected, len(values))
	}

	var builder strings.Builder
	builder.Grow(len(query))
	next := 0
	for _, token := range tokens {
		if !token.IsPlaceholder() {
			builder.WriteString(token.Value)
			continue
		}
		builder.WriteString(Literal(values[next]))
		next++
	}
	return builder.String(), nil
}

// Literal renders one value as SQL. Numbers and text made only of digits
// stay unquoted; other text is single quoted with embedded quotes doubled.
func Literal(value core.Value) string {
	switch value.Kind {
	case core.UnsetKind, core.NullKind:
		return "NULL"
	case core.IntKind:
		if value.Text == "" {
			return "NULL"
		}
		return value.Text
	case core.FloatKind:
		switch value.Text {
		case "", "NaN":
			// NaN reads back as NULL, which decodes to NaN again.
			return "NULL"
		case "+Inf":
			return "9e999"
		case "-Inf":
			return "-9e999"
		}
		return value.Text
	case core.BlobKind:
		return "X'" + strings.ToUpper(hex.EncodeToString([]byte(value.Text))) + "'"
	default:
		if allDigits(value.Text) {
			return value.Text
		}
		return Quote(value.Text)
	}
}

// Quote single quotes text as a SQL string literal.
func Quote(text string) string {
	return "'" + strings.ReplaceAll(text, "'", "''") + "'"
}

func allDigits(text string) bool {
	if text == "" {
		return false
	}
	for i := 0; i < len(text); i++ {
		if !isDigit(text[i]) {
			return false
		}
	}
	return true
}

// MultiRow repeats the parenthesized tuple holding the first placeholder
// of an INSERT once per row, comma separated, and normalizes the markers.
// Text before and after the tuple is kept. Every placeholder must be
// inside the tuple.
func MultiRow(query string, rows int, style MarkerStyle) (string, error) {
	if rows < 1 {
		return "", fmt.Errorf("multi-row insert needs at least one row, got %d", rows)
	}

	first := -1
	offset := 0
	for _, token := range tokenize(query) {
		if token.IsPlaceholder() {
			first = offset
			break
		}
		offset += len(token.Value)
	}
	if first < 0 {
		return "", fmt.Errorf("multi-row insert without placeholders: %s", query)
	}

	open := enclosingParen(query, first)
	if open < 0 {
		return "", fmt.Errorf("no value tuple before first placeholder: %s", query)
	}
	closing := matchParen(query, open)
	if closing < 0 {
		return "", fmt.Errorf("unbalanced value tuple: %s", query)
	}

	tuple := query[open : closing+1]
	perRow := CountParams(tuple)
	if perRow != CountParams(query) {
		return "", fmt.Errorf("multi-row insert requires every placeholder inside the value tuple: %s", query)
	}

	var builder strings.Builder
	builder.Grow(len(query) + (len(tuple)+1)*(rows-1))
	builder.WriteString(query[:open])
	for row := 0; row < rows; row++ {
		if row > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(tuple)
	}
	builder.WriteString(query[closing+1:])
	return Normalize(builder.String(), style), nil
}

// enclosingParen returns the outermost parenthesis still open at pos.
func enclosingParen(query string, pos int) int {
	var open []int
	for i := 0; i < pos; i++ {
		switch query[i] {
		case '(':
			open = append(open, i)
		case ')':
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		}
	}
	if len(open) == 0 {
		return -1
	}
	return open[0]
}

func matchParen(query string, open int) int {
	depth := 0
	for i := open; i < len(query); i++ {
		switch query[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
