package payload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/google/uuid"
)

const maxBoundaryAttempts = 8

// newBoundary is swapped in tests.
var newBoundary = func() string {
	return "sessionhttp-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Part is one section of a multipart/form-data body.
type Part struct {
	// Name is the form field name.
	Name string
	// FileName is sent in Content-Disposition when non-empty.
	FileName string
	// ContentType of the part. File parts default to application/octet-stream.
	ContentType string
	// Data is the part content. Used if Reader is nil.
	Data []byte
	// Reader is read fully when the body is encoded.
	Reader io.Reader
}

// FieldPart creates a plain text field.
func FieldPart(name, value string) Part {
	return Part{Name: name, Data: []byte(value)}
}

// FilePart creates a file upload part.
func FilePart(name, fileName string, data []byte) Part {
	return Part{Name: name, FileName: fileName, Data: data}
}

// Multipart is an ordered multipart/form-data payload.
type Multipart []Part

func (Multipart) isPayload() {}

// Encode implements Payload.
func (m Multipart) Encode() (*Body, error) {
	return EncodeMultipart(m)
}

// EncodeMultipart frames parts with a boundary that does not occur in any part.
func EncodeMultipart(parts []Part) (*Body, error) {
	contents := make([][]byte, len(parts))
	for i, p := range parts {
		if p.Reader == nil {
			contents[i] = p.Data
			continue
		}
		data, err := io.ReadAll(p.Reader)
		if err != nil {
			return nil, fmt.Errorf("payload: read part %q: %w", p.Name, err)
		}
		contents[i] = data
	}

	boundary, err := pickBoundary(parts, contents)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("payload: set boundary: %w", err)
	}

	for i, p := range parts {
		pw, err := w.CreatePart(partHeader(p))
		if err != nil {
			return nil, fmt.Errorf("payload: create part %q: %w", p.Name, err)
		}
		if _, err := pw.Write(contents[i]); err != nil {
			return nil, fmt.Errorf("payload: write part %q: %w", p.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("payload: close multipart: %w", err)
	}

	return &Body{ContentType: w.FormDataContentType(), Data: buf.Bytes()}, nil
}

func pickBoundary(parts []Part, contents [][]byte) (string, error) {
	for range maxBoundaryAttempts {
		b := newBoundary()
		if !boundaryCollides(b, parts, contents) {
			return b, nil
		}
	}
	return "", errors.New("payload: could not pick a multipart boundary absent from part contents")
}

func boundaryCollides(boundary string, parts []Part, contents [][]byte) bool {
	needle := []byte(boundary)
	for i, p := range parts {
		if bytes.Contains(contents[i], needle) ||
			strings.Contains(p.Name, boundary) ||
			strings.Contains(p.FileName, boundary) {
			return true
		}
	}
	return false
}

func partHeader(p Part) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	disposition := `form-data; name="` + escapeQuotes(p.Name) + `"`
	if p.FileName != "" {
		disposition += `; filename="` + escapeQuotes(p.FileName) + `"`
	}
	h.Set("Content-Disposition", disposition)

	ct := p.ContentType
	if ct == "" && p.FileName != "" {
		ct = "application/octet-stream"
	}
	if ct != "" {
		h.Set("Content-Type", ct)
	}
	return h
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
