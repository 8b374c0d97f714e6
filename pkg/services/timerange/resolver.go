package timerange

import (
	"fmt"
	"strings"
	"time"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
	"github.com/rs/zerolog"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02_15:04"
	rangeSep       = "~"
)

// MalformedTimeRangeError reports a period descriptor that could not be
// resolved into a valid period.
type MalformedTimeRangeError struct {
	Input  string
	Reason string
}

func (e *MalformedTimeRangeError) Error() string {
	return fmt.Sprintf("malformed time range %q: %s", e.Input, e.Reason)
}

// Resolver turns textual period descriptors into concrete periods.
// It is immutable and safe for concurrent use.
type Resolver struct {
	loc *time.Location
}

// NewResolver builds a resolver for the given UTC offset ("+07:00").
// An offset that fails to parse falls back to UTC with a warning; it
// never aborts startup.
func NewResolver(offset string, logger zerolog.Logger) *Resolver {
	loc, err := parseOffset(offset)
	if err != nil {
		logger.Warn().Str("offset", offset).Err(err).Msg("invalid timezone offset, falling back to UTC")
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

// Resolve parses "start~end" (each `yyyy-mm-dd_hh:mm` or `yyyy-mm-dd`)
// or a plain date alone, which expands to the full day.
func (r *Resolver) Resolve(input string) (domain.Period, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return domain.Period{}, &MalformedTimeRangeError{Input: input, Reason: "empty descriptor"}
	}

	if !strings.Contains(trimmed, rangeSep) {
		start, end, err := r.parseDay(trimmed)
		if err != nil {
			return domain.Period{}, &MalformedTimeRangeError{Input: input, Reason: err.Error()}
		}
		return domain.Period{Start: start, End: end}, nil
	}

	parts := strings.SplitN(trimmed, rangeSep, 2)
	startTok, endTok := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if startTok == "" || endTok == "" {
		return domain.Period{}, &MalformedTimeRangeError{Input: input, Reason: "missing start or end token"}
	}

	start, err := r.parseToken(startTok, false)
	if err != nil {
		return domain.Period{}, &MalformedTimeRangeError{Input: input, Reason: fmt.Sprintf("start token: %v", err)}
	}
	end, err := r.parseToken(endTok, true)
	if err != nil {
		return domain.Period{}, &MalformedTimeRangeError{Input: input, Reason: fmt.Sprintf("end token: %v", err)}
	}
	if start.After(end) {
		return domain.Period{}, &MalformedTimeRangeError{Input: input, Reason: "start is after end"}
	}
	return domain.Period{Start: start, End: end}, nil
}

// parseDay expands a plain date to [00:00:00, 23:59:59] of that day.
func (r *Resolver) parseDay(tok string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, tok, r.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("not a yyyy-mm-dd date: %q", tok)
	}
	return day, day.Add(24*time.Hour - time.Second), nil
}

func (r *Resolver) parseToken(tok string, isEnd bool) (time.Time, error) {
	if ts, err := time.ParseInLocation(dateTimeLayout, tok, r.loc); err == nil {
		return ts, nil
	}
	day, err := time.ParseInLocation(dateLayout, tok, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a timestamp-like token: %q", tok)
	}
	if isEnd {
		return day.Add(24*time.Hour - time.Second), nil
	}
	return day, nil
}

func parseOffset(offset string) (*time.Location, error) {
	if offset == "" || strings.EqualFold(offset, "UTC") {
		return time.UTC, nil
	}
	ts, err := time.Parse("-07:00", offset)
	if err != nil {
		return nil, fmt.Errorf("offset must look like \"+07:00\": %w", err)
	}
	_, secs := ts.Zone()
	return time.FixedZone("UTC"+offset, secs), nil
}
