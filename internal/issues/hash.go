package issues

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // identity digest, not a security boundary
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrFileNotFound is returned by loaders when the file does not exist at the
// requested revision.
var ErrFileNotFound = errors.New("file not found")

// FileLoader returns the full text of a file at the revision under review.
type FileLoader interface {
	Load(ctx context.Context, path string) (string, error)
}

// Hasher computes position-independent issue identities.
type Hasher struct {
	loader         FileLoader
	artifactMarker string
	logger         *slog.Logger
}

// NewHasher builds a hasher reading file contents through loader. Paths with
// a segment starting with artifactMarker are treated as generated files.
func NewHasher(loader FileLoader, artifactMarker string, logger *slog.Logger) *Hasher {
	return &Hasher{loader: loader, artifactMarker: artifactMarker, logger: logger}
}

func (h *Hasher) compute(ctx context.Context, i *Issue) (string, error) {
	extras, err := canonicalJSON(i.variant().ExtraIdentifiers())
	if err != nil {
		h.logger.Warn("failed to serialize extra identifiers", "issue", i.String(), "error", err)
		return "", fmt.Errorf("failed to serialize extra identifiers: %w", err)
	}

	payload := strings.Join([]string{
		i.Analyzer,
		i.Path,
		string(i.Level),
		i.Check,
		extras,
		h.rawContent(ctx, i),
		i.Message,
	}, ":")

	sum := md5.Sum([]byte(payload)) //nolint:gosec
	return hex.EncodeToString(sum[:]), nil
}

func (h *Hasher) isArtifact(path string) bool {
	if h.artifactMarker == "" {
		return false
	}
	for _, segment := range strings.Split(path, "/") {
		if strings.HasPrefix(segment, h.artifactMarker) {
			return true
		}
	}
	return false
}

// rawContent returns the stripped flagged lines joined by newlines. Missing
// or unreadable files contribute no content.
func (h *Hasher) rawContent(ctx context.Context, i *Issue) string {
	if h.isArtifact(i.Path) || h.loader == nil {
		return ""
	}

	content, err := h.loader.Load(ctx, i.Path)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			h.logger.Debug("file not found while hashing issue", "path", i.Path)
		} else {
			h.logger.Warn("failed to load file while hashing issue", "path", i.Path, "error", err)
		}
		return ""
	}

	lines := splitLines(content)
	if i.Line > 0 && i.NbLines > 0 {
		start := min(i.Line-1, len(lines))
		end := min(start+i.NbLines, len(lines))
		lines = lines[start:end]
	}

	stripped := make([]string, len(lines))
	for n, line := range lines {
		stripped[n] = strings.TrimSpace(line)
	}
	return strings.Join(stripped, "\n")
}

// splitLines splits on line boundaries without producing a trailing empty
// line for a final newline.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// canonicalJSON serializes v with sorted keys, ", " and ": " separators and
// non-ASCII characters escaped, so that equal values always produce the same
// bytes.
func canonicalJSON(v any) (string, error) {
	var b strings.Builder
	if err := writeCanonical(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeCanonical(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("{")
		for n, k := range keys {
			if n > 0 {
				b.WriteString(", ")
			}
			if err := writeScalar(b, k); err != nil {
				return err
			}
			b.WriteString(": ")
			if err := writeCanonical(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteString("}")
	case []any:
		b.WriteString("[")
		for n, item := range val {
			if n > 0 {
				b.WriteString(", ")
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteString("]")
	default:
		return writeScalar(b, val)
	}
	return nil
}

func writeScalar(b *strings.Builder, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	b.WriteString(asciiEscape(strings.TrimSuffix(buf.String(), "\n")))
	return nil
}

func asciiEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		case r > 0xFFFF:
			r -= 0x10000
			fmt.Fprintf(&b, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String()
}
