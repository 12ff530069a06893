// Package httpserver constructs the HTTP server with sane timeouts.
package httpserver

import (
	"net/http"
	"time"
)

// New returns an http.Server bound to addr. Timeouts guard against
// slow clients holding connections open indefinitely.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
