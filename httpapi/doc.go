// Package httpapi binds the authentication engine to JSON-over-HTTP. Each
// handler decodes one request shape, delegates to a single Engine method and
// translates the sentinel error into a status code. No authentication
// decision is made here.
package httpapi
