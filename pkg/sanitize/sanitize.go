// Package sanitize cleans values typed by humans before they enter the graph.
package sanitize

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxInputSize is 64KB. Resume values are often pasted prompts.
	DefaultMaxInputSize = 64 * 1024
	// EnvMaxInputSize is the environment variable to override the default.
	EnvMaxInputSize = "NODEWEAVE_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// Input cleans user input by enforcing size limits,
// validating UTF-8, and stripping dangerous control characters.
// Newline, tab and carriage return are kept.
func Input(input string) (string, error) {
	limit := maxInputSize()
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// Value applies Input to every string inside v, descending into maps and
// lists. Other values pass through unchanged.
func Value(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return Input(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			clean, err := Value(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = clean
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			clean, err := Value(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = clean
		}
		return out, nil
	default:
		return v, nil
	}
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

func maxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
