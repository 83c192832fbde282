// Package backend holds the generation clients the coordinator drives: the
// stable-diffusion-webui API, the GLID-3-XL server and an offline mock.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"

	_ "image/jpeg"

	"golang.org/x/sync/errgroup"
)

const pngDataPrefix = "data:image/png;base64,"

// StatusError is a non-success HTTP response from a backend.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.Code, e.Message)
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

// encodePNG returns img as base64 PNG data, optionally with a data URI
// prefix.
func encodePNG(img image.Image, withPrefix bool) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	s := base64.StdEncoding.EncodeToString(buf.Bytes())
	if withPrefix {
		return pngDataPrefix + s, nil
	}
	return s, nil
}

// decodeImage accepts raw base64 or a data URI.
func decodeImage(s string) (image.Image, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// decodeAll decodes images in parallel, keeping their order.
func decodeAll(ctx context.Context, encoded []string) ([]image.Image, error) {
	out := make([]image.Image, len(encoded))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, s := range encoded {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := decodeImage(s)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// errorMessage pulls a human readable message out of a JSON error body.
// Servers use "error", "detail" (string or validation list) or "message".
func errorMessage(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return strings.TrimSpace(string(truncate(body, 200)))
	}
	var parts []string
	for _, key := range []string{"error", "detail", "errors", "message"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if s != "" {
				parts = append(parts, s)
			}
			continue
		}
		parts = append(parts, string(truncate(raw, 200)))
	}
	return strings.Join(parts, ": ")
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// readBody drains resp and returns a StatusError for non-2xx codes.
func readBody(op string, resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, &StatusError{Op: op, Code: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}
