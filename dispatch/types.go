package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/dmitrymomot/mailroom/ingest"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

// Context keys with defaults.
const (
	KeyName          = "name"
	KeyOffer         = "offer"
	KeyCustomMessage = "custom_message"

	DefaultOffer = "Special Offer"
)

// Context holds the per-recipient template values.
type Context map[string]string

// DefaultContext returns the values used when a request leaves them out.
func DefaultContext() Context {
	return Context{
		KeyName:          mailer.DefaultName,
		KeyOffer:         DefaultOffer,
		KeyCustomMessage: "",
	}
}

// UnmarshalJSON decodes over the defaults, so absent keys keep their default
// values. Non-string values are kept in their JSON text form.
func (c *Context) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	out := DefaultContext()
	for k, v := range raw {
		var s string
		switch {
		case bytes.Equal(v, []byte("null")):
			continue
		case json.Unmarshal(v, &s) == nil:
			out[k] = s
		default:
			out[k] = string(v)
		}
	}
	*c = out
	return nil
}

// withDefaults returns a copy of c with absent default keys filled in.
func (c Context) withDefaults() Context {
	out := DefaultContext()
	maps.Copy(out, c)
	return out
}

// data is the render input: the subject plus the nested context map.
func (c Context) data(subject string) map[string]any {
	ctx := make(map[string]any, len(c))
	for k, v := range c {
		ctx[k] = v
	}
	return map[string]any{"subject": subject, "context": ctx}
}

// Template selects the body source: inline template text or a named library
// template. The zero value renders mailer.DefaultTemplate.
type Template struct {
	Source string
	Name   string
}

// Inline returns a Template rendering src. Blank src means the default layout.
func Inline(src string) Template { return Template{Source: src} }

// Named returns a Template rendering a library entry.
func Named(name string) Template { return Template{Name: name} }

// DueTime is a schedule time. It accepts RFC 3339 and zone-less layouts;
// zone-less values are taken as UTC.
type DueTime struct {
	time.Time
}

var dueTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func (d *DueTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("schedule time must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	for _, layout := range dueTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid schedule time %q", s)
}

func (d DueTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.UTC().Format(time.RFC3339))
}

// At wraps t.
func At(t time.Time) *DueTime { return &DueTime{Time: t} }

// SingleRequest sends one templated message.
type SingleRequest struct {
	ScheduleTime *DueTime `json:"schedule_time,omitempty"`
	Context      Context  `json:"context"`
	Recipient    string   `json:"recipient"`
	Subject      string   `json:"subject"`
	Template     string   `json:"template,omitempty"`
	TemplateName string   `json:"template_name,omitempty"`
}

// PersonalizedRequest sends a caller supplied body without templating.
type PersonalizedRequest struct {
	ScheduleTime *DueTime `json:"schedule_time,omitempty"`
	Recipient    string   `json:"recipient"`
	Subject      string   `json:"subject"`
	EmailBody    string   `json:"email_body"`
}

// BulkRequest sends one templated message per recipient.
type BulkRequest struct {
	ScheduleTime *DueTime  `json:"schedule_time,omitempty"`
	Subject      string    `json:"subject"`
	Template     string    `json:"template,omitempty"`
	TemplateName string    `json:"template_name,omitempty"`
	Recipients   []string  `json:"recipients"`
	Contexts     []Context `json:"contexts"`
}

// SheetRequest sends rows previously read from a spreadsheet.
type SheetRequest struct {
	ScheduleTime *DueTime     `json:"schedule_time,omitempty"`
	Rows         []ingest.Row `json:"emails"`
}

// Response is returned by every Service send and schedule call.
type Response struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	JobID   string     `json:"job_id,omitempty"`
	Results []BulkItem `json:"results,omitempty"`
}

func success(msg string) Response {
	return Response{Status: "success", Message: msg}
}

func templateOf(src, name string) Template {
	if name != "" {
		return Named(name)
	}
	return Inline(src)
}
