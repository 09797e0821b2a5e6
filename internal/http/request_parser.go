// Package http serves the lead board as a JSON API.
//
// This file holds the helpers that read path variables, query parameters
// and edit bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"leadboard/internal/core"
	"leadboard/internal/log"
)

// maxBodyBytes bounds an edit body; every edit carries a single value.
const maxBodyBytes = 64 << 10

// errBadRequest marks malformed parameters that no domain error covers.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// ParseMonthParams extracts year and month from query parameters. Missing
// values default to now; non-numeric values are rejected.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: now.Month()}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, badRequest("year %q", v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, badRequest("month %q", v)
		}
		params.Month = time.Month(m)
	}
	return params, nil
}

// ParseWeekParam returns the week query parameter, or fallback when it is
// empty. The week must start on a Monday.
func ParseWeekParam(query url.Values, fallback string) (string, error) {
	week := strings.TrimSpace(query.Get("week"))
	if week == "" {
		week = fallback
	}
	if err := core.ValidateMonday(week); err != nil {
		return "", err
	}
	return week, nil
}

// ProjectRef identifies the project an edit targets.
type ProjectRef struct {
	Owner     string
	ProjectID string
}

func projectRef(r *http.Request) ProjectRef {
	vars := mux.Vars(r)
	return ProjectRef{Owner: vars["owner"], ProjectID: vars["id"]}
}

func pathInt(r *http.Request, name string) (int, error) {
	v := mux.Vars(r)[name]
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("%s %q", name, v)
	}
	return n, nil
}

// RequestBodyParser reads an edit body sent either as JSON or as a form.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if p.err != nil {
		p.err = badRequest("read body: %v", p.err)
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.err = badRequest("invalid JSON body: %v", err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(body)
	if p.err != nil {
		p.err = badRequest("invalid form body: %v", p.err)
	}
	return p.err
}

// Get returns a trimmed string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

func (p *RequestBodyParser) format() string {
	if p.jsonData != nil {
		return "json"
	}
	return "form"
}

// parseBody reads and parses the request body in one step.
func parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return nil, err
	}
	log.FromContext(r.Context()).DebugContext(r.Context(), "Request body parsed", "format", p.format())
	return p, nil
}

// stringValue converts a decoded JSON value to the text a user would have
// typed; numbers keep their shortest form.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
