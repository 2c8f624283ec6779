// Package validator checks document feed requests and reports per-field
// failures.
package validator

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion"
)

const (
	maxURLLength   = 2048
	maxTitleLength = 1024
	maxBodyLength  = 2_000_000
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks the request and returns the parsed fetch
// time. An empty FetchedAt resolves to now.
func ValidateIngestRequest(req *ingestion.IngestRequest, now time.Time) (time.Time, error) {
	errs := make(map[string]string)

	if req.URL == "" {
		errs["url"] = "url is required"
	} else if len(req.URL) > maxURLLength {
		errs["url"] = fmt.Sprintf("url must be at most %d characters", maxURLLength)
	} else if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs["url"] = "url must be an absolute http or https URL"
	}

	if len(req.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		errs["body"] = "body is required and must not be empty"
	} else if len(req.Body) > maxBodyLength {
		errs["body"] = fmt.Sprintf("body must be at most %d bytes", maxBodyLength)
	}

	fetchedAt := now.UTC()
	if req.FetchedAt != "" {
		t, err := ParseTimestamp(req.FetchedAt)
		if err != nil {
			errs["fetched_at"] = "fetched_at must be an ISO-8601 timestamp"
		} else {
			fetchedAt = t
		}
	}

	if len(errs) > 0 {
		return time.Time{}, &ValidationError{Fields: errs}
	}
	return fetchedAt, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 date-times with or without an offset;
// values without one are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
