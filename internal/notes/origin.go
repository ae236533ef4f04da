package notes

import "context"

// Origin describes where a request came from, for the technical part of notifications.
type Origin struct {
	RemoteAddr string
	UserAgent  string
	// BaseURL prefixes links in notifications, such as "https://notes.example".
	BaseURL string
}

type originKey struct{}

func WithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

func originFrom(ctx context.Context) Origin {
	origin, _ := ctx.Value(originKey{}).(Origin)
	return origin
}
