package handler

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
)

// ServeHTTP serves the chat endpoint for the standalone server.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	in := inbound{
		adapter: "http",
		method:  r.Method,
		path:    r.URL.Path,
		header:  r.Header.Get,
		client:  h.clientAddr(r),
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			// Unreadable bodies are treated like malformed JSON.
			body = nil
		} else {
			in.bodyTooLarge = true
		}
	}
	in.body = body

	out := h.serve(r.Context(), in)
	for k, v := range out.headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(out.status)
	if len(out.body) > 0 {
		_, _ = w.Write(out.body)
	}
}

func (h *Handler) clientAddr(r *http.Request) string {
	if h.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
