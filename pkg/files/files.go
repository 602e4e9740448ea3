// Package files turns files into lazily streamed handler results.
//
// A stream opens its source only when the response body is emitted, and
// reopens it on every emission.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cinder-go/cinder/pkg/contenttype"
	"github.com/cinder-go/cinder/pkg/message"
)

// ErrNotFound is returned by Dir.Lookup for paths that are not regular
// files under the root.
var ErrNotFound = errors.New("files: not found")

// Open streams the file at name. The content type is guessed from the
// extension.
func Open(name string) message.Stream {
	return message.Stream{
		ContentType: contenttype.ForPath(name),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return os.Open(name)
		},
	}
}

// Dir serves files below a root directory.
type Dir struct {
	Root string
}

// Lookup maps a slash-separated URL path to a stream of the file it names.
// Paths escaping the root, directories and missing files yield ErrNotFound.
func (d Dir) Lookup(urlPath string) (message.Stream, error) {
	clean := path.Clean("/" + urlPath)
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" || !fs.ValidPath(rel) {
		return message.Stream{}, ErrNotFound
	}

	full := filepath.Join(d.Root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return message.Stream{}, ErrNotFound
	}
	return Open(full), nil
}

// S3API is the subset of *s3.Client that S3Object needs.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Object streams an object from a bucket. The content type is taken from
// the key's extension, since the object's own metadata is only known once
// the body is opened.
func S3Object(client S3API, bucket, key string) message.Stream {
	return message.Stream{
		ContentType: contenttype.ForPath(key),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			out, err := client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return nil, fmt.Errorf("files: get s3://%s/%s: %w", bucket, key, err)
			}
			return out.Body, nil
		},
	}
}
