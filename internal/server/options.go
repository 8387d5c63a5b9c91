package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ResponseMode controls checking of handler responses against the document
type ResponseMode int

const (
	// ResponsesOff skips response validation
	ResponsesOff ResponseMode = iota
	// ResponsesLog logs violations and still sends the response
	ResponsesLog
	// ResponsesEnforce replaces a non-conforming response with a 500
	ResponsesEnforce
)

func (m ResponseMode) String() string {
	switch m {
	case ResponsesLog:
		return "log"
	case ResponsesEnforce:
		return "enforce"
	}
	return "off"
}

// ParseResponseMode reads "off", "log" or "enforce"
func ParseResponseMode(s string) (ResponseMode, error) {
	switch strings.ToLower(s) {
	case "", "off":
		return ResponsesOff, nil
	case "log":
		return ResponsesLog, nil
	case "enforce":
		return ResponsesEnforce, nil
	}
	return ResponsesOff, fmt.Errorf("response validation mode %q: want off, log or enforce", s)
}

// Option configures a Server
type Option func(*Server)

// WithBasePath strips prefix from every request path before routing.
// Requests outside the prefix are answered with 404.
func WithBasePath(prefix string) Option {
	return func(s *Server) {
		s.basePath = strings.TrimSuffix(prefix, "/")
	}
}

// WithRequestTimeout bounds the time a handler may take. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithRateLimit admits at most rps requests per second across all clients.
// A non-positive rps disables limiting; burst defaults to rps rounded up.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = int(rps + 0.999)
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithResponseValidation enables response checking
func WithResponseValidation(mode ResponseMode) Option {
	return func(s *Server) {
		s.responses = mode
	}
}

// WithLogger sets the logger; the default discards
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}
