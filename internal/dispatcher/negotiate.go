package dispatcher

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrNotAcceptable means no declared content type satisfies the Accept header
var ErrNotAcceptable = errors.New("no acceptable content type")

// NegotiationError carries what was asked for and what could be offered
type NegotiationError struct {
	Accept    string
	Available []string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%v: accept %q, available %s", ErrNotAcceptable, e.Accept, strings.Join(e.Available, ", "))
}

func (e *NegotiationError) Unwrap() error {
	return ErrNotAcceptable
}

type mediaRange struct {
	typ, sub string
	q        float64
}

func (r mediaRange) matches(typ, sub string) bool {
	return (r.typ == "*" || r.typ == typ) && (r.sub == "*" || r.sub == sub)
}

func (r mediaRange) specificity() int {
	switch {
	case r.typ == "*":
		return 0
	case r.sub == "*":
		return 1
	}
	return 2
}

func parseAccept(accept string) []mediaRange {
	if strings.TrimSpace(accept) == "" {
		return []mediaRange{{typ: "*", sub: "*", q: 1}}
	}

	var ranges []mediaRange
	for _, part := range strings.Split(accept, ",") {
		fields := strings.Split(part, ";")
		typ, sub, ok := strings.Cut(strings.ToLower(strings.TrimSpace(fields[0])), "/")
		if !ok || typ == "" || sub == "" {
			continue
		}
		r := mediaRange{typ: typ, sub: sub, q: 1}
		for _, param := range fields[1:] {
			k, v, _ := strings.Cut(strings.TrimSpace(param), "=")
			if strings.EqualFold(k, "q") {
				if q, err := strconv.ParseFloat(v, 64); err == nil && q >= 0 && q <= 1 {
					r.q = q
				}
			}
		}
		ranges = append(ranges, r)
	}
	return ranges
}

// quality is the q-value of the most specific range matching a media type
func quality(ranges []mediaRange, mediaType string) float64 {
	typ, sub, _ := strings.Cut(strings.ToLower(mediaType), "/")
	best, spec := 0.0, -1
	for _, r := range ranges {
		if r.matches(typ, sub) && r.specificity() > spec {
			best, spec = r.q, r.specificity()
		}
	}
	return best
}

// Negotiate picks a content type from the declared ones for an Accept
// header. Declared types are tried in order, so earlier entries win ties.
// A declared wildcard is narrowed to the first concrete type the client
// accepts, or application/octet-stream.
func Negotiate(accept string, declared []string) (string, error) {
	ranges := parseAccept(accept)

	best, bestQ := "", 0.0
	for _, d := range declared {
		base := strings.TrimSpace(strings.Split(d, ";")[0])
		if strings.Contains(base, "*") {
			if concrete, q := narrow(ranges, base); q > bestQ {
				best, bestQ = concrete, q
			}
			continue
		}
		if q := quality(ranges, base); q > bestQ {
			best, bestQ = d, q
		}
	}

	if best == "" {
		return "", &NegotiationError{Accept: accept, Available: declared}
	}
	return best, nil
}

func narrow(ranges []mediaRange, wildcard string) (string, float64) {
	typ, _, _ := strings.Cut(wildcard, "/")

	sorted := append([]mediaRange(nil), ranges...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].q > sorted[j].q })

	for _, r := range sorted {
		if r.q == 0 || r.specificity() < 2 {
			continue
		}
		if typ == "*" || typ == r.typ {
			return r.typ + "/" + r.sub, r.q
		}
	}
	if q := quality(ranges, "application/octet-stream"); q > 0 && (typ == "*" || typ == "application") {
		return "application/octet-stream", q
	}
	return "", 0
}
