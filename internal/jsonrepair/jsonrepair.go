// Package jsonrepair recovers structured output from models that wrap JSON in
// prose or code fences, drop commas, leave trailing commas, or stop mid-object.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnrepairable = errors.New("response is not valid JSON after repair")

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && isFenceTag(s[:nl]) {
			s = s[nl+1:]
		} else if isFenceTag(s) {
			s = ""
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// Extract returns the first JSON object or array in s. When the value never
// closes, everything from the opener onwards is returned so Repair can finish
// it. Text without any opener is returned unchanged.
func Extract(s string) string {
	s = StripFences(s)
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// Repair applies, in order: comma insertion between values separated only by
// a newline, closing of unterminated strings and containers, and removal of
// trailing commas.
func Repair(s string) string {
	s = insertMissingCommas(s)
	s = balance(s)
	return stripTrailingCommas(s)
}

// Parse decodes raw into v, falling back to Extract and Repair.
func Parse(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	extracted := Extract(raw)
	if err := json.Unmarshal([]byte(extracted), v); err == nil {
		return nil
	}

	if err := json.Unmarshal([]byte(Repair(extracted)), v); err != nil {
		return fmt.Errorf("%w: %s", ErrUnrepairable, preview(raw))
	}
	return nil
}

func preview(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max]
	}
	return s
}

// endsValue reports whether c can be the last byte of a JSON value.
func endsValue(c byte) bool {
	switch {
	case c == '"', c == '}', c == ']':
		return true
	case c >= '0' && c <= '9':
		return true
	case c >= 'a' && c <= 'z':
		// true, false, null
		return true
	}
	return false
}

func insertMissingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	var last byte // last significant byte outside a string; '"' after a string closes
	sawNewline := false
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				last = '"'
				sawNewline = false
			}
			continue
		}

		switch c {
		case ' ', '\t', '\r':
			b.WriteByte(c)
			continue
		case '\n':
			sawNewline = true
			b.WriteByte(c)
			continue
		}

		if (c == '"' || c == '{' || c == '[') && sawNewline && last != 0 && endsValue(last) {
			insertBeforeWhitespace(&b)
		}

		b.WriteByte(c)
		if c == '"' {
			inString = true
		}
		last = c
		sawNewline = false
	}
	return b.String()
}

// insertBeforeWhitespace adds a comma directly after the previous token,
// ahead of the whitespace already written.
func insertBeforeWhitespace(b *strings.Builder) {
	out := b.String()
	trimmed := strings.TrimRight(out, " \t\r\n")
	b.Reset()
	b.WriteString(trimmed)
	b.WriteByte(',')
	b.WriteString(out[len(trimmed):])
}

func balance(s string) string {
	var stack []byte
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if n := len(stack); n > 0 && stack[n-1] == c {
				stack = stack[:n-1]
			}
		}
	}

	if !inString && len(stack) == 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		if escaped {
			// drop a dangling backslash so the closing quote is not escaped
			trimmed := b.String()[:b.Len()-1]
			b.Reset()
			b.WriteString(trimmed)
		}
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j == len(s) || s[j] == '}' || s[j] == ']' {
				i = j - 1
				continue
			}
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}
