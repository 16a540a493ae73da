// -- cmd/source.go --
package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// maxPageSize bounds a page or stream read from any source.
const maxPageSize = 16 << 20

// sourceLoader reads pages and stream bodies from files, stdin or http(s).
type sourceLoader struct {
	client *http.Client
	stdin  io.Reader
	logger *zap.Logger
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Load returns the content behind ref. "-" reads stdin.
func (l *sourceLoader) Load(ctx context.Context, ref string) (string, error) {
	switch {
	case ref == "-":
		if l.stdin == nil {
			return "", fmt.Errorf("stdin is not available")
		}
		data, err := io.ReadAll(io.LimitReader(l.stdin, maxPageSize))
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	case isRemote(ref):
		return l.fetch(ctx, ref)
	default:
		path, err := homedir.Expand(ref)
		if err != nil {
			return "", fmt.Errorf("invalid path %q: %w", ref, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", ref, err)
		}
		return string(data), nil
	}
}

func (l *sourceLoader) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", target, err)
	}
	req.Header.Set("Accept", "text/html, application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to fetch %s: unexpected status %d", target, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", target, err)
	}
	l.logger.Debug("Fetched page", zap.String("url", target), zap.Int("bytes", len(data)))
	return string(data), nil
}

// LoadAll loads every ref in order.
func (l *sourceLoader) LoadAll(ctx context.Context, refs []string) ([]string, error) {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		body, err := l.Load(ctx, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, body)
	}
	return out, nil
}
