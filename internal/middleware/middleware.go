package middleware

// contextKey is a private type for context values set by middleware,
// preventing collisions with keys from other packages.
type contextKey string
