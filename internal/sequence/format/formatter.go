// Package format renders control numbers and sequence periods.
//
// Both share one token grammar, scanned left to right:
//
//	{YYYY} {YY} {MM} {DD}  issue date in UTC
//	{SEQ}                  sequence value
//	{SEQn}                 sequence value zero padded to n digits
//
// Text outside braces is copied unchanged.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/fuelledger/internal/config"
)

// periodLayouts partition sequences by reset policy. Perpetual sequences
// share the empty period.
var periodLayouts = map[config.ResetPolicy]string{
	"":                  "",
	config.ResetNever:   "",
	config.ResetAnnual:  "{YYYY}",
	config.ResetMonthly: "{YYYY}-{MM}",
}

// FormatControlNumber renders a control number from a template, the issue
// time and the sequence value.
func FormatControlNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("control number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid control sequence: %d", seq)
	}
	return expand(template, issuedAt.UTC(), seq)
}

// Period returns the sequence partition an issue at `at` falls into.
func Period(policy config.ResetPolicy, at time.Time) (string, error) {
	layout, ok := periodLayouts[policy]
	if !ok {
		return "", fmt.Errorf("unknown reset policy %q", policy)
	}
	return expand(layout, at.UTC(), 0)
}

// expand resolves every token in template. seq is zero when sequence tokens
// are not allowed.
func expand(template string, at time.Time, seq int64) (string, error) {
	var b strings.Builder
	rest := template
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		literal := rest
		if open >= 0 {
			literal = rest[:open]
		}
		if strings.IndexByte(literal, '}') >= 0 {
			return "", fmt.Errorf("unbalanced brace in format %q", template)
		}
		b.WriteString(literal)
		if open < 0 {
			break
		}

		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated token in format %q", template)
		}
		value, err := resolve(rest[open+1:open+end], at, seq)
		if err != nil {
			return "", fmt.Errorf("%w in format %q", err, template)
		}
		b.WriteString(value)
		rest = rest[open+end+1:]
	}
	return b.String(), nil
}

func resolve(token string, at time.Time, seq int64) (string, error) {
	switch token {
	case "YYYY":
		return at.Format("2006"), nil
	case "YY":
		return at.Format("06"), nil
	case "MM":
		return at.Format("01"), nil
	case "DD":
		return at.Format("02"), nil
	}

	digits, ok := strings.CutPrefix(token, "SEQ")
	if !ok {
		return "", fmt.Errorf("unresolved token {%s}", token)
	}
	if seq <= 0 {
		return "", fmt.Errorf("sequence token {%s} not allowed", token)
	}
	if digits == "" {
		return strconv.FormatInt(seq, 10), nil
	}
	width, err := strconv.Atoi(digits)
	if err != nil || width <= 0 {
		return "", fmt.Errorf("invalid sequence width {%s}", token)
	}
	return fmt.Sprintf("%0*d", width, seq), nil
}
