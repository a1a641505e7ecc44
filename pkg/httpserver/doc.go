// Package httpserver runs an http.Handler with configured timeouts and a
// graceful shutdown bound to a context, and provides health probe handlers.
package httpserver
