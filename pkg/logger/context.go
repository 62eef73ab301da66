package logger

import (
	"context"
	"maps"
	"sync"
)

var (
	registryMu          sync.RWMutex
	contextKeyRegistry = make(map[any]string)
)

// RegisterContextKey makes the ...FCtx methods log ctx.Value(ctxKey) under logField.
func RegisterContextKey(ctxKey any, logField string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	contextKeyRegistry[ctxKey] = logField
}

func UnregisterContextKey(ctxKey any) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(contextKeyRegistry, ctxKey)
}

// ContextKeys returns a copy of the registry.
func ContextKeys() map[any]string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return maps.Clone(contextKeyRegistry)
}

// WithSessionID tags ctx with a session id for ...FCtx logging.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// WithRequestID tags ctx with a request id for ...FCtx logging.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
