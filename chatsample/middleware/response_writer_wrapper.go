package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

func wrapResponseWriter(w http.ResponseWriter) *responseWriterWrapper {
	return &responseWriterWrapper{ResponseWriter: w, status: http.StatusOK}
}

// responseWriterWrapper captures the written HTTP status code for logging.
// It passes Hijack through, so websocket upgrades work behind it.
type responseWriterWrapper struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

// Status is the status code written so far, or 101 for hijacked connections
func (rw *responseWriterWrapper) Status() int {
	return rw.status
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

func (rw *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http.Hijacker not implemented by the wrapped ResponseWriter")
	}
	rw.status = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return hijacker.Hijack()
}
