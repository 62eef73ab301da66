// Package payload turns typed request payloads into a body plus content type.
//
// Payload is a closed set: Raw, Form, JSON and Multipart. Any of them may be sent
// with POST, PUT or a custom method.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/milan604/sessionhttp/pkg/form"
)

// Content types implied by the built-in payload kinds.
const (
	ContentTypeForm = "application/x-www-form-urlencoded"
	ContentTypeJSON = "application/json"
)

// Payload is a request body source.
type Payload interface {
	// Encode materializes the body. It is called once per request build.
	Encode() (*Body, error)
	isPayload()
}

// Body is an encoded payload ready to attach to a request.
type Body struct {
	// ContentType is the implied Content-Type; empty means none.
	ContentType string
	// Data holds the encoded bytes when the payload is buffered.
	Data []byte
	// Stream is set instead of Data for unbuffered raw payloads.
	Stream io.Reader
	// Length is the stream length, or -1 when unknown. Ignored for Data.
	Length int64
}

// Reader returns a fresh reader over the body.
func (b *Body) Reader() io.Reader {
	if b.Stream != nil {
		return b.Stream
	}
	return bytes.NewReader(b.Data)
}

// Replayable reports whether the body can be read more than once.
func (b *Body) Replayable() bool { return b.Stream == nil }

// ContentLength returns the body length, or -1 when unknown.
func (b *Body) ContentLength() int64 {
	if b.Stream != nil {
		return b.Length
	}
	return int64(len(b.Data))
}

// Raw is a passthrough body with an explicit content type.
type Raw struct {
	ContentType string
	Data        []byte
	// Stream, when non-nil, is used instead of Data and is not buffered.
	Stream io.Reader
	// Length of Stream if known; zero is treated as unknown.
	Length int64
}

func (Raw) isPayload() {}

// Encode implements Payload.
func (r Raw) Encode() (*Body, error) {
	if r.Stream != nil {
		length := r.Length
		if length <= 0 {
			length = -1
		}
		return &Body{ContentType: r.ContentType, Stream: r.Stream, Length: length}, nil
	}
	return EncodeRaw(r.ContentType, r.Data), nil
}

// Form is an ordered list of url-encoded form fields.
type Form []form.Param

func (Form) isPayload() {}

// Encode implements Payload.
func (f Form) Encode() (*Body, error) {
	return EncodeForm(f), nil
}

// JSON is any value encodable by encoding/json.
type JSON struct {
	Value any
}

func (JSON) isPayload() {}

// Encode implements Payload.
func (j JSON) Encode() (*Body, error) {
	return EncodeJSON(j.Value)
}

// EncodeRaw returns the given bytes unchanged.
func EncodeRaw(contentType string, data []byte) *Body {
	return &Body{ContentType: contentType, Data: data}
}

// EncodeForm renders params as an application/x-www-form-urlencoded body.
func EncodeForm(params []form.Param) *Body {
	return &Body{ContentType: ContentTypeForm, Data: form.Encode(params)}
}

// EncodeJSON serializes v as an application/json body.
func EncodeJSON(v any) (*Body, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payload: encode json: %w", err)
	}
	return &Body{ContentType: ContentTypeJSON, Data: data}, nil
}
