package http

import (
	"context"

	"github.com/milan604/sessionhttp/pkg/options"
	"github.com/milan604/sessionhttp/pkg/payload"
	"github.com/milan604/sessionhttp/pkg/response"
)

// Client defines the calls a Session offers.
// This interface allows for mocking and alternative implementations.
type Client interface {
	// Request sends any method, with an optional body.
	Request(ctx context.Context, method, url string, opts options.Options, body payload.Payload) (*response.Response, error)

	Get(ctx context.Context, url string, opts options.Options) (*response.Response, error)
	Head(ctx context.Context, url string, opts options.Options) (*response.Response, error)
	Delete(ctx context.Context, url string, opts options.Options) (*response.Response, error)
	Options(ctx context.Context, url string, opts options.Options) (*response.Response, error)
	Post(ctx context.Context, url string, opts options.Options, body payload.Payload) (*response.Response, error)
	Put(ctx context.Context, url string, opts options.Options, body payload.Payload) (*response.Response, error)
	Patch(ctx context.Context, url string, opts options.Options, body payload.Payload) (*response.Response, error)
}

// Ensure Session implements Client interface.
var _ Client = (*Session)(nil)
