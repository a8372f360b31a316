package binding

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/schema"
)

// ApplyParse runs the output transform configured for a port.
// The default mode returns raw untouched; every other mode works on text.
func ApplyParse(raw any, pc domain.ParseConfig) (any, error) {
	switch pc.Mode {
	case "", domain.ParseDefault:
		return raw, nil
	case domain.ParseDelimiter:
		return parseDelimiter(schema.Stringify(raw), pc.Config), nil
	case domain.ParseField:
		return parseField(raw, pc.Config), nil
	case domain.ParseRegex:
		return parseRegex(schema.Stringify(raw), pc.Config)
	case domain.ParseSequence:
		return parseSequence(schema.Stringify(raw), pc.Config)
	default:
		return nil, fmt.Errorf("unknown parse mode: %s", pc.Mode)
	}
}

// parseDelimiter returns the text between the first start marker and the next
// end marker. Without an end marker the rest of the text is returned; without
// a start marker the text is returned unchanged.
func parseDelimiter(text, config string) string {
	start, end, _ := strings.Cut(config, "|")
	i := strings.Index(text, start)
	if start == "" || i < 0 {
		return text
	}
	rest := text[i+len(start):]
	if end == "" {
		return rest
	}
	if j := strings.Index(rest, end); j >= 0 {
		return rest[:j]
	}
	return rest
}

func parseField(raw any, field string) any {
	switch v := raw.(type) {
	case map[string]any:
		return v[field]
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err == nil {
			return obj[field]
		}
	}

	text := schema.Stringify(raw)
	pattern := `"` + regexp.QuoteMeta(field) + `"\s*:\s*("(?:[^"\\]|\\.)*"|[^,}\s]+)`
	m := regexp.MustCompile(pattern).FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	if s, err := strconv.Unquote(m[1]); err == nil {
		return s
	}
	var decoded any
	if err := json.Unmarshal([]byte(m[1]), &decoded); err == nil {
		return decoded
	}
	return m[1]
}

func parseRegex(text, expr string) (any, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	m := re.FindStringSubmatch(text)
	switch {
	case m == nil:
		return "", nil
	case len(m) > 1:
		return m[1], nil
	default:
		return m[0], nil
	}
}

func parseSequence(text, config string) (any, error) {
	n, err := strconv.Atoi(strings.TrimSpace(config))
	if err != nil {
		return nil, fmt.Errorf("sequence needs a line number: %w", err)
	}
	lines := strings.Split(text, "\n")
	if n < 1 || n > len(lines) {
		return "", nil
	}
	return strings.TrimSuffix(lines[n-1], "\r"), nil
}
