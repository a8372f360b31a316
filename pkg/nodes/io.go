package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/schema"
	"github.com/gabriel-vasile/mimetype"
)

// maxResponseBytes caps how much of an HTTP response body is read.
const maxResponseBytes = 10 << 20

func (o *options) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || o.baseDir == "" {
		return p
	}
	return filepath.Join(o.baseDir, p)
}

// fileRead returns text files as strings and everything else as a Blob.
func fileRead(o *options) registry.Definition {
	return registry.Definition{
		Type:        "file.read",
		Description: "Reads a file from disk",
		Category:    "io",
		Inputs:      []string{"path"},
		Outputs:     []string{"content", "media_type"},
		Behavior: registry.BehaviorFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
			path := o.resolvePath(firstString(inv.Inputs["path"], inv.Config["path"]))
			if path == "" {
				return nil, errors.New("path is empty")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}

			mt := mimetype.Detect(data)
			if isText(mt) {
				return map[string]any{"content": string(data), "media_type": mt.String()}, nil
			}
			return map[string]any{
				"content":    domain.Blob{MediaType: mt.String(), Data: data},
				"media_type": mt.String(),
			}, nil
		}),
	}
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return strings.HasPrefix(mt.String(), "text/")
}

func fileWrite(o *options) registry.Definition {
	return registry.Definition{
		Type:        "file.write",
		Description: "Writes content to a file, creating parent directories",
		Category:    "io",
		Inputs:      []string{"path", "content"},
		Outputs:     []string{"path"},
		Behavior: registry.BehaviorFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
			path := o.resolvePath(firstString(inv.Inputs["path"], inv.Config["path"]))
			if path == "" {
				return nil, errors.New("path is empty")
			}

			var data []byte
			switch c := inv.Inputs["content"].(type) {
			case domain.Blob:
				data = c.Data
			case *domain.Blob:
				data = c.Data
			case []byte:
				data = c
			default:
				data = []byte(schema.Stringify(c))
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return nil, err
			}
			return map[string]any{"path": path}, nil
		}),
	}
}

type httpSettings struct {
	Method  string            `mapstructure:"method"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// httpRequest decodes JSON response bodies; other bodies stay text.
// Non-2xx statuses are outputs, not failures.
func httpRequest(o *options) registry.Definition {
	return registry.Definition{
		Type:        "http.request",
		Description: "Calls an HTTP endpoint",
		Category:    "io",
		Inputs:      []string{"url", "body"},
		Outputs:     []string{"body", "status"},
		Defaults:    map[string]any{"method": http.MethodGet},
		Behavior: registry.BehaviorFunc(func(ctx context.Context, inv *registry.Invocation) (map[string]any, error) {
			var s httpSettings
			if err := decode(inv.Config, &s); err != nil {
				return nil, err
			}
			url := firstString(inv.Inputs["url"], s.URL)
			if url == "" {
				return nil, errors.New("url is empty")
			}

			var body io.Reader
			if b := inv.Inputs["body"]; b != nil {
				body = strings.NewReader(schema.Stringify(b))
			}
			req, err := http.NewRequestWithContext(ctx, strings.ToUpper(s.Method), url, body)
			if err != nil {
				return nil, err
			}
			for k, v := range s.Headers {
				req.Header.Set(k, v)
			}
			if body != nil && req.Header.Get("Content-Type") == "" {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := o.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return nil, fmt.Errorf("read response: %w", err)
			}

			var out any = string(data)
			if strings.Contains(resp.Header.Get("Content-Type"), "json") {
				var decoded any
				if err := json.NewDecoder(bytes.NewReader(data)).Decode(&decoded); err == nil {
					out = decoded
				}
			}
			return map[string]any{"body": out, "status": resp.StatusCode}, nil
		}),
	}
}
