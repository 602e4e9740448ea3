package middleware

import (
	"context"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/cinder-go/cinder/pkg/dispatch"
	"github.com/cinder-go/cinder/pkg/header"
	"github.com/cinder-go/cinder/pkg/message"
)

// Content codings understood by Compress.
const (
	EncodingBrotli = "br"
	EncodingZstd   = "zstd"
	EncodingGzip   = "gzip"
)

// CompressConfig configures the compression middleware.
type CompressConfig struct {
	// Encodings in server preference order (default: br, zstd, gzip).
	Encodings []string

	// Level is passed to the encoder; 0 picks each encoder's default.
	Level int

	// Types are content type prefixes worth compressing.
	Types []string
}

// CompressOption configures the compression middleware.
type CompressOption func(*CompressConfig)

// WithEncodings sets the accepted codings in preference order.
func WithEncodings(encodings ...string) CompressOption {
	return func(c *CompressConfig) {
		c.Encodings = encodings
	}
}

// WithLevel sets the compression level.
func WithLevel(level int) CompressOption {
	return func(c *CompressConfig) {
		c.Level = level
	}
}

// WithTypes sets the compressible content type prefixes.
func WithTypes(types ...string) CompressOption {
	return func(c *CompressConfig) {
		c.Types = types
	}
}

func defaultCompressConfig() CompressConfig {
	return CompressConfig{
		Encodings: []string{EncodingBrotli, EncodingZstd, EncodingGzip},
		Types: []string{
			"text/",
			"application/json",
			"application/ld+json",
			"application/javascript",
			"application/xml",
			"image/svg+xml",
		},
	}
}

// Compress creates middleware that encodes successful response bodies with
// the best coding the client accepts. Encoding is lazy: the body is
// compressed while it is emitted, chunk by chunk.
func Compress(opts ...CompressOption) dispatch.Middleware {
	config := defaultCompressConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return dispatch.MiddlewareFunc(func(ctx context.Context, req *message.Request, resp *message.Response, next dispatch.Next) error {
		if err := next(ctx); err != nil {
			return err
		}
		if resp.Body == nil || resp.Header.Has(header.ContentEncoding) {
			return nil
		}
		if !compressible(resp.ContentType(), config.Types) {
			return nil
		}

		resp.Header.Add(header.Vary, "accept-encoding")
		enc := Negotiate(req.Header.Get(header.AcceptEncoding), config.Encodings)
		if enc == "" {
			return nil
		}

		resp.Body = encodeBody(resp.Body, resp.ChunkSize, enc, config.Level)
		resp.Header.Set(header.ContentEncoding, enc)
		resp.Header.Del(header.ContentLength)
		return nil
	})
}

// Negotiate picks the first of supported that the accept-encoding value
// allows, or "" when none is. "*" allows every coding not listed with q=0.
func Negotiate(acceptEncoding string, supported []string) string {
	allowed := map[string]bool{}
	wildcard := false
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		ok := qualityOf(params) > 0
		if name == "*" {
			wildcard = ok
			continue
		}
		allowed[name] = ok
	}

	for _, enc := range supported {
		if ok, listed := allowed[enc]; listed {
			if ok {
				return enc
			}
			continue
		}
		if wildcard {
			return enc
		}
	}
	return ""
}

func qualityOf(params string) float64 {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.TrimSpace(k) != "q" {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return q
	}
	return 1
}

func compressible(ct string, types []string) bool {
	if ct == "" {
		return false
	}
	ct = strings.ToLower(ct)
	return slices.ContainsFunc(types, func(prefix string) bool {
		return strings.HasPrefix(ct, prefix)
	})
}

func newEncoder(w io.Writer, enc string, level int) (io.WriteCloser, error) {
	switch enc {
	case EncodingBrotli:
		if level < 1 {
			level = 4
		}
		return brotli.NewWriterLevel(w, level), nil
	case EncodingZstd:
		l := zstd.SpeedDefault
		if level > 0 {
			l = zstd.EncoderLevelFromZstd(level)
		}
		return zstd.NewWriter(w, zstd.WithEncoderLevel(l))
	default:
		if level == 0 {
			level = gzip.DefaultCompression
		}
		return gzip.NewWriterLevel(w, level)
	}
}

// encodeBody wraps src so that each emission compresses it afresh through
// a pipe.
func encodeBody(src *message.Body, size int, enc string, level int) *message.Body {
	return message.ReaderBody(func(ctx context.Context) (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		w, err := newEncoder(pw, enc, level)
		if err != nil {
			return nil, err
		}
		go func() {
			for chunk, err := range src.Chunks(ctx, size) {
				if err == nil {
					_, err = w.Write(chunk)
				}
				if err != nil {
					w.Close()
					pw.CloseWithError(err)
					return
				}
			}
			pw.CloseWithError(w.Close())
		}()
		return pr, nil
	})
}
