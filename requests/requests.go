// Package requests validates API request bodies against embedded JSON
// Schemas before they are decoded into dispatch request types.
package requests

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dmitrymomot/mailroom/dispatch"
)

// MaxBodySize bounds a request body. Sheet sends carry every row inline.
const MaxBodySize = 10 << 20

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema is a compiled request schema.
type Schema struct {
	schema *gojsonschema.Schema
	name   string
}

// Name returns the schema file name without extension.
func (s *Schema) Name() string { return s.name }

// Schemas, one per request body shape.
var (
	Single       = mustLoad("single")
	Personalized = mustLoad("personalized")
	Bulk         = mustLoad("bulk")
	Sheet        = mustLoad("sheet")
)

// ErrBodyTooLarge is reported when a body exceeds MaxBodySize.
var ErrBodyTooLarge = errors.New("requests: body too large")

// FieldError describes one invalid input, shaped like the FastAPI error
// items clients of this API already parse.
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationErrors is returned when a body fails its schema.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = strings.Join(e.Loc, ".") + ": " + e.Msg
	}
	return "requests: invalid body: " + strings.Join(parts, "; ")
}

// AsValidationErrors extracts ValidationErrors from err.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// Decode reads r, validates it against s, then unmarshals it into v.
// Malformed JSON and schema violations both yield ValidationErrors.
func Decode(r io.Reader, s *Schema, v any) error {
	body, err := io.ReadAll(io.LimitReader(r, MaxBodySize+1))
	if err != nil {
		return fmt.Errorf("requests: read body: %w", err)
	}
	if len(body) > MaxBodySize {
		return errors.Join(ErrBodyTooLarge, ValidationErrors{{
			Loc:  []string{"body"},
			Msg:  "Request body too large",
			Type: "too_large",
		}})
	}

	if err := s.Validate(body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return ValidationErrors{{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error"}}
	}
	return nil
}

// Validate checks a JSON document against the schema.
func (s *Schema) Validate(doc []byte) error {
	if len(strings.TrimSpace(string(doc))) == 0 {
		return ValidationErrors{{Loc: []string{"body"}, Msg: "Field required", Type: "missing"}}
	}

	res, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return ValidationErrors{{Loc: []string{"body"}, Msg: "JSON decode error: " + err.Error(), Type: "json_invalid"}}
	}
	if res.Valid() {
		return nil
	}

	out := make(ValidationErrors, 0, len(res.Errors()))
	for _, re := range res.Errors() {
		out = append(out, fieldError(re))
	}
	return out
}

func fieldError(re gojsonschema.ResultError) FieldError {
	loc := []string{"body"}
	if f := re.Field(); f != "" && f != rootField {
		loc = append(loc, strings.Split(f, ".")...)
	}

	switch re.Type() {
	case "required":
		if p, ok := re.Details()["property"].(string); ok {
			loc = append(loc, p)
		}
		return FieldError{Loc: loc, Msg: "Field required", Type: "missing"}
	case "format":
		return FieldError{Loc: loc, Msg: formatMessage(re), Type: "value_error"}
	case "invalid_type":
		return FieldError{Loc: loc, Msg: "Input should be " + fmt.Sprint(re.Details()["expected"]), Type: "type_error"}
	default:
		return FieldError{Loc: loc, Msg: re.Description(), Type: re.Type()}
	}
}

func formatMessage(re gojsonschema.ResultError) string {
	switch re.Details()["format"] {
	case "email":
		return "value is not a valid email address"
	case dueTimeFormat:
		return "Input should be a valid datetime"
	default:
		return re.Description()
	}
}

func mustLoad(name string) *Schema {
	raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		panic(fmt.Sprintf("requests: missing schema %s: %v", name, err))
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("requests: invalid schema %s: %v", name, err))
	}
	return &Schema{schema: s, name: name}
}

const (
	dueTimeFormat = "due-time"
	rootField     = "(root)"
)

// dueTimeChecker accepts every layout dispatch.DueTime parses.
type dueTimeChecker struct{}

func (dueTimeChecker) IsFormat(input any) bool {
	s, ok := input.(string)
	if !ok {
		return true
	}
	b, _ := json.Marshal(s)
	var d dispatch.DueTime
	return d.UnmarshalJSON(b) == nil
}

func init() {
	gojsonschema.FormatCheckers.Add(dueTimeFormat, dueTimeChecker{})
}
