package web

import (
	"context"
	"net/http"
)

type contextKey string

const requestIDKey = contextKey("request_id")

func AddValueToContext(r *http.Request, key any, value any) *http.Request {
	ctx := r.Context()
	ctx = context.WithValue(ctx, key, value)
	return r.WithContext(ctx)
}

func GetValueFromContext[T any](r *http.Request, key any) (T, bool) {
	val := r.Context().Value(key)
	if val == nil {
		var zero T
		return zero, false
	}
	tVal, ok := val.(T)

	if !ok {
		var zero T
		return zero, false
	}

	return tVal, true
}

func SetRequestID(r *http.Request, id string) *http.Request {
	return AddValueToContext(r, requestIDKey, id)
}

func RequestID(r *http.Request) string {
	id, _ := GetValueFromContext[string](r, requestIDKey)
	return id
}

// ClientIP is the address notifications report for a request. A proxy-set
// X-Real-IP wins over the connection's remote address.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
