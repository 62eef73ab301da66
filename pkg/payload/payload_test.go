package payload

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milan604/sessionhttp/pkg/form"
)

func readParts(t *testing.T, body *Body) []*multipartPart {
	t.Helper()

	mediaType, params, err := mime.ParseMediaType(body.ContentType)
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)

	r := multipart.NewReader(bytes.NewReader(body.Data), params["boundary"])
	var out []*multipartPart
	for {
		p, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(p)
		require.NoError(t, err)
		out = append(out, &multipartPart{
			name:        p.FormName(),
			fileName:    p.FileName(),
			contentType: p.Header.Get("Content-Type"),
			data:        data,
		})
	}
	return out
}

type multipartPart struct {
	name        string
	fileName    string
	contentType string
	data        []byte
}

func TestEncodeMultipart_ParsesBack(t *testing.T) {
	body, err := Multipart{
		FieldPart("field", "v"),
		FilePart("file", "f.txt", []byte("data")),
	}.Encode()
	require.NoError(t, err)

	parts := readParts(t, body)
	require.Len(t, parts, 2)

	assert.Equal(t, "field", parts[0].name)
	assert.Empty(t, parts[0].fileName)
	assert.Equal(t, []byte("v"), parts[0].data)

	assert.Equal(t, "file", parts[1].name)
	assert.Equal(t, "f.txt", parts[1].fileName)
	assert.Equal(t, "application/octet-stream", parts[1].contentType)
	assert.Equal(t, []byte("data"), parts[1].data)

	assert.True(t, bytes.HasSuffix(body.Data, []byte("--\r\n")))
}

func TestEncodeMultipart_ReaderAndContentType(t *testing.T) {
	body, err := EncodeMultipart([]Part{{
		Name:        "doc",
		FileName:    `we"ird.json`,
		ContentType: "application/json",
		Reader:      strings.NewReader(`{"a":1}`),
	}})
	require.NoError(t, err)

	parts := readParts(t, body)
	require.Len(t, parts, 1)
	assert.Equal(t, `we"ird.json`, parts[0].fileName)
	assert.Equal(t, "application/json", parts[0].contentType)
	assert.Equal(t, `{"a":1}`, string(parts[0].data))
}

func TestEncodeMultipart_RegeneratesCollidingBoundary(t *testing.T) {
	original := newBoundary
	t.Cleanup(func() { newBoundary = original })

	candidates := []string{"collide", "fresh-boundary"}
	newBoundary = func() string {
		b := candidates[0]
		candidates = candidates[1:]
		return b
	}

	body, err := EncodeMultipart([]Part{FieldPart("x", "this has collide inside")})
	require.NoError(t, err)
	assert.Contains(t, body.ContentType, "boundary=fresh-boundary")
}

func TestEncodeMultipart_GivesUpAfterRepeatedCollisions(t *testing.T) {
	original := newBoundary
	t.Cleanup(func() { newBoundary = original })
	newBoundary = func() string { return "same" }

	_, err := EncodeMultipart([]Part{FieldPart("x", "same")})
	require.Error(t, err)
}

func TestEncodeMultipart_DefaultBoundaryShape(t *testing.T) {
	b := newBoundary()
	assert.True(t, strings.HasPrefix(b, "sessionhttp-"))
	assert.LessOrEqual(t, len(b), 70)
}

func TestEncodeForm(t *testing.T) {
	body, err := Form{form.P("a", "1 2"), form.P("b", "x&y")}.Encode()
	require.NoError(t, err)
	assert.Equal(t, ContentTypeForm, body.ContentType)

	values, err := url.ParseQuery(string(body.Data))
	require.NoError(t, err)
	assert.Equal(t, "1 2", values.Get("a"))
	assert.Equal(t, "x&y", values.Get("b"))
}

func TestEncodeJSON(t *testing.T) {
	body, err := JSON{Value: map[string]int{"n": 1}}.Encode()
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, body.ContentType)
	assert.JSONEq(t, `{"n":1}`, string(body.Data))

	_, err = JSON{Value: make(chan int)}.Encode()
	assert.Error(t, err)
}

func TestEncodeRaw(t *testing.T) {
	body, err := Raw{ContentType: "text/plain", Data: []byte("hi")}.Encode()
	require.NoError(t, err)
	assert.Equal(t, "text/plain", body.ContentType)
	assert.True(t, body.Replayable())
	assert.Equal(t, int64(2), body.ContentLength())

	stream, err := Raw{ContentType: "application/octet-stream", Stream: strings.NewReader("abc")}.Encode()
	require.NoError(t, err)
	assert.False(t, stream.Replayable())
	assert.Equal(t, int64(-1), stream.ContentLength())
	data, err := io.ReadAll(stream.Reader())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}
