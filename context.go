package brewauth

import (
	"context"
	"sync"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type identityContextKey struct{}
type identityTrackerContextKey struct{}

type identityTracker struct {
	mu       sync.Mutex
	identity Identity
}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for audit logging.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. Used by the
// audit trail to describe the client.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithIdentity attaches the request principal to ctx. Middleware sets it
// after access-token verification; handlers and audit read it back.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if tracker, ok := ctx.Value(identityTrackerContextKey{}).(*identityTracker); ok {
		tracker.mu.Lock()
		tracker.identity = id
		tracker.mu.Unlock()
	}
	return context.WithValue(ctx, identityContextKey{}, id)
}

// TrackIdentity lets an outer middleware observe the principal that an
// inner [WithIdentity] call attaches to a derived context. The returned
// function reports the last identity set, or [Anonymous].
func TrackIdentity(ctx context.Context) (context.Context, func() Identity) {
	tracker := &identityTracker{identity: Anonymous}
	ctx = context.WithValue(ctx, identityTrackerContextKey{}, tracker)
	return ctx, func() Identity {
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		return tracker.identity
	}
}

// IdentityFromContext returns the principal attached to ctx, or
// [Anonymous] when none was set.
func IdentityFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Anonymous
	}

	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok {
		return Anonymous
	}
	return id
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}
