package middleware

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/cinder-go/cinder/pkg/header"
)

func TestNegotiate(t *testing.T) {
	supported := []string{EncodingBrotli, EncodingZstd, EncodingGzip}
	tests := []struct {
		accept string
		want   string
	}{
		{"", ""},
		{"gzip", "gzip"},
		{"gzip, br", "br"},
		{"br;q=0, gzip", "gzip"},
		{"zstd;q=0.5, identity", "zstd"},
		{"*", "br"},
		{"*, br;q=0", "zstd"},
		{"deflate", ""},
		{"GZIP", "gzip"},
	}
	for _, tt := range tests {
		if got := Negotiate(tt.accept, supported); got != tt.want {
			t.Errorf("Negotiate(%q) = %q, want %q", tt.accept, got, tt.want)
		}
	}
}

func decode(t *testing.T, enc string, data []byte) string {
	t.Helper()
	var r io.Reader
	switch enc {
	case EncodingGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("gzip reader: %v", err)
		}
		r = gr
	case EncodingBrotli:
		r = brotli.NewReader(bytes.NewReader(data))
	case EncodingZstd:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("zstd reader: %v", err)
		}
		defer zr.Close()
		r = zr
	default:
		return string(data)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("decode %s: %v", enc, err)
	}
	return string(out)
}

func TestCompress(t *testing.T) {
	d := newShopDispatcher(t, Compress())

	for _, enc := range []string{EncodingGzip, EncodingBrotli, EncodingZstd} {
		t.Run(enc, func(t *testing.T) {
			resp, err := run(t, d, newRequest("GET", "/report", [2]string{"accept-encoding", enc}))
			if err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			if got := resp.Header.Get(header.ContentEncoding); got != enc {
				t.Fatalf("content-encoding = %q, want %q", got, enc)
			}
			if got := resp.Header.Get(header.Vary); got != "accept-encoding" {
				t.Errorf("vary = %q", got)
			}

			// Emitted twice to check the body restarts.
			for i := 0; i < 2; i++ {
				raw, err := resp.Body.ReadAll(context.Background())
				if err != nil {
					t.Fatalf("ReadAll: %v", err)
				}
				if got := decode(t, enc, raw); !strings.Contains(got, `"report":"sales sales`) {
					t.Errorf("decoded body = %.40q", got)
				}
			}
		})
	}
}

func TestCompressSkips(t *testing.T) {
	d := newShopDispatcher(t, Compress())

	t.Run("no accept-encoding", func(t *testing.T) {
		resp, _ := run(t, d, newRequest("GET", "/"))
		if resp.Header.Has(header.ContentEncoding) {
			t.Error("compressed without accept-encoding")
		}
		if resp.Header.Get(header.Vary) != "accept-encoding" {
			t.Error("vary not set on compressible response")
		}
	})

	t.Run("binary content", func(t *testing.T) {
		resp, _ := run(t, d, newRequest("GET", "/logo", [2]string{"accept-encoding", "gzip"}))
		if resp.Header.Has(header.ContentEncoding) {
			t.Error("compressed an octet stream")
		}
	})

	t.Run("error outcome", func(t *testing.T) {
		resp, err := run(t, d, newRequest("GET", "/forbidden", [2]string{"accept-encoding", "gzip"}))
		if err == nil {
			t.Fatal("expected error")
		}
		if resp.Header.Has(header.ContentEncoding) {
			t.Error("compressed an error response")
		}
	})
}
