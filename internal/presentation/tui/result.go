package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/nodeweave/pkg/domain"
)

// FormatResult renders an execution result as markdown.
func FormatResult(res *domain.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s · %s\n\n", res.NodeID, res.Status)
	if res.Error != "" {
		fmt.Fprintf(&sb, "> **error:** %s\n\n", res.Error)
	}
	writePorts(&sb, "Inputs", res.Inputs)
	writePorts(&sb, "Outputs", res.Outputs)
	return sb.String()
}

// FormatVariables renders the variable store as a markdown table.
func FormatVariables(vars []domain.Variable) string {
	if len(vars) == 0 {
		return "_no variables_\n"
	}
	var sb strings.Builder
	sb.WriteString("| name | type | value |\n|---|---|---|\n")
	for _, v := range vars {
		fmt.Fprintf(&sb, "| %s | %s | %s |\n", v.Name, v.Type, cell(v.Value))
	}
	return sb.String()
}

func writePorts(sb *strings.Builder, title string, ports map[string]any) {
	if len(ports) == 0 {
		return
	}
	keys := make([]string, 0, len(ports))
	for k := range ports {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(sb, "**%s**\n\n", title)
	for _, k := range keys {
		fmt.Fprintf(sb, "- `%s`: %s\n", k, cell(ports[k]))
	}
	sb.WriteString("\n")
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return "_empty_"
	case string:
		return strings.ReplaceAll(t, "\n", " ")
	case *domain.Blob:
		return fmt.Sprintf("<%s, %d bytes>", t.MediaType, len(t.Data))
	case domain.Blob:
		return fmt.Sprintf("<%s, %d bytes>", t.MediaType, len(t.Data))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return "`" + string(data) + "`"
}
