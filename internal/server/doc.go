// Package server exposes the file drop and account operations over HTTP.
// It owns routing, middleware, request decoding and the mapping of service
// errors to status codes; the work itself lives in the store and identity
// packages.
package server
