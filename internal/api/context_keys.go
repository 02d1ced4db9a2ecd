// internal/api/context_keys.go
package api

// Context key types to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"
