package message

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/cinder-go/cinder/pkg/contenttype"
)

// Result is the closed set of values a handler may produce.
// Implementations: Text, Bytes, Structured, Stream.
type Result interface {
	result()
}

// Text is encoded as UTF-8 and served as text/plain.
type Text string

// Bytes is served raw as application/octet-stream.
type Bytes []byte

// Structured is JSON-encoded and served as application/json.
type Structured struct {
	Value any
}

// Stream is read lazily in chunks. Open is called once per emission.
type Stream struct {
	ContentType string
	Open        Opener
}

func (Text) result()       {}
func (Bytes) result()      {}
func (Structured) result() {}
func (Stream) result()     {}

// JSON wraps v as a Structured result.
func JSON(v any) Structured {
	return Structured{Value: v}
}

// Lift maps a plain handler return value onto Result.
//
//	Result         as is
//	string         Text
//	[]byte         Bytes
//	io.Reader      Stream, readable once
//	struct, map, slice, array, or pointer to one of them   Structured
//
// Anything else fails with ErrUnsupportedResult.
func Lift(v any) (Result, error) {
	switch x := v.(type) {
	case Result:
		return x, nil
	case string:
		return Text(x), nil
	case []byte:
		return Bytes(x), nil
	case io.Reader:
		return readerStream(x), nil
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedResult)
	}

	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer {
		if reflect.ValueOf(v).IsNil() {
			return nil, fmt.Errorf("%w: nil %s", ErrUnsupportedResult, t)
		}
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return Structured{Value: v}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedResult, t)
}

func readerStream(r io.Reader) Stream {
	return Stream{Open: func(context.Context) (io.ReadCloser, error) {
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil
	}}
}

// Encode turns a result into a body and the content type it implies.
func Encode(res Result) (*Body, string, error) {
	switch r := res.(type) {
	case Text:
		return StringBody(string(r)), contenttype.TextPlain, nil
	case Bytes:
		return BytesBody(r), contenttype.OctetStream, nil
	case Structured:
		data, err := json.Marshal(r.Value)
		if err != nil {
			return nil, "", fmt.Errorf("message: encode result: %w", err)
		}
		return BytesBody(data), contenttype.JSON, nil
	case Stream:
		if r.Open == nil {
			return nil, "", fmt.Errorf("%w: stream without opener", ErrUnsupportedResult)
		}
		ct := r.ContentType
		if ct == "" {
			ct = contenttype.OctetStream
		}
		return ReaderBody(r.Open), ct, nil
	}
	return nil, "", fmt.Errorf("%w: %T", ErrUnsupportedResult, res)
}

// Write encodes res into resp. The content type is only set when resp has
// none yet, so a declared content type wins.
func Write(resp *Response, res Result) error {
	body, ct, err := Encode(res)
	if err != nil {
		return err
	}
	resp.Body = body
	if resp.ContentType() == "" {
		resp.SetContentType(ct)
	}
	return nil
}
