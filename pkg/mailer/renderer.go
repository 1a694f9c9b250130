package mailer

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/flosch/pongo2/v6"

	"github.com/dmitrymomot/mailroom/pkg/logger"
)

// TimeFormat is the layout of the injected current_time value.
const TimeFormat = "2006-01-02 15:04:05 UTC"

// Keys injected into every render.
const (
	KeyCurrentTime = "current_time"
	KeySenderName  = "sender_name"
	KeySenderEmail = "sender_email"
	KeySenderPhone = "sender_phone"
)

// Defaults used by the fallback layout when the context lacks a value.
const (
	DefaultName    = "Valued Customer"
	DefaultMessage = "Thank you for your interest."
)

// DefaultTemplate is the plain-text layout used when a request carries no
// template of its own.
const DefaultTemplate = `Hi {{ context.name }},

{{ context.custom_message }}

{% if context.offer %}
{{ context.offer }}
{% endif %}

Best regards,
{{ sender_name }}
{{ sender_email }}
{% if sender_phone %}
{{ sender_phone }}
{% endif %}`

var (
	// {{ path.to.value|filter:"arg" }}
	outputExpr = regexp.MustCompile(`\{\{-?\s*([A-Za-z_]\w*(?:\.\w+)*)\s*(\|[^}]*)?-?\}\}`)
	// Names introduced by the template itself.
	forBinding  = regexp.MustCompile(`\{%-?\s*for\s+([\w\s,]+?)\s+in\s`)
	withBinding = regexp.MustCompile(`\{%-?\s*with\s+([^%]+?)-?%\}`)
	setBinding  = regexp.MustCompile(`\{%-?\s*set\s+(\w+)\s*=`)
	assignment  = regexp.MustCompile(`(\w+)\s*=|\bas\s+(\w+)`)

	builtinNames = map[string]struct{}{
		"forloop": {}, "true": {}, "false": {}, "True": {}, "False": {}, "nil": {}, "None": {},
	}
)

// Renderer fills templates from a data map. Parsed templates are cached by
// source text, so it is meant to be long lived and shared.
type Renderer struct {
	cache    map[string]*pongo2.Template
	logger   *slog.Logger
	now      func() time.Time
	identity Identity
	mu       sync.RWMutex
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithRendererLogger sets the logger used to report fallbacks.
func WithRendererLogger(l *slog.Logger) RendererOption {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRendererClock overrides the source of current_time.
func WithRendererClock(now func() time.Time) RendererOption {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRenderer creates a renderer that injects identity into every render.
func NewRenderer(identity Identity, opts ...RendererOption) *Renderer {
	r := &Renderer{
		cache:    make(map[string]*pongo2.Template),
		logger:   logger.NewNope(),
		now:      time.Now,
		identity: identity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns src filled from data. On any failure it logs a warning and
// returns the fallback layout, so the result is always usable as a body.
// data is not modified.
func (r *Renderer) Render(src string, data map[string]any) string {
	out, err := r.RenderStrict(src, data)
	if err != nil {
		r.logger.Warn("template rendering failed, using fallback", slog.Any("error", err))
		return r.Fallback(data)
	}
	return out
}

// RenderStrict is Render without the fallback.
func (r *Renderer) RenderStrict(src string, data map[string]any) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Join(ErrRenderFailed, fmt.Errorf("panic: %v", p))
		}
	}()

	vars := r.inject(data)
	if err := checkDefined(src, vars); err != nil {
		return "", err
	}

	tpl, err := r.compile(src)
	if err != nil {
		return "", err
	}

	out, err = tpl.Execute(pongo2.Context(vars))
	if err != nil {
		return "", errors.Join(ErrRenderFailed, err)
	}
	return out, nil
}

// Fallback builds the fixed plain-text layout from data["context"].
// Empty name and custom_message values are replaced by their defaults.
func (r *Renderer) Fallback(data map[string]any) string {
	c := data["context"]
	name := stringField(c, "name")
	if name == "" {
		name = DefaultName
	}
	message := stringField(c, "custom_message")
	if message == "" {
		message = DefaultMessage
	}
	offer := stringField(c, "offer")

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n%s\n\n%s\n\nBest regards,\n%s", name, message, offer, r.identity.Name)
	if r.identity.Email != "" {
		b.WriteString("\n" + r.identity.Email)
	}
	if r.identity.Phone != "" {
		b.WriteString("\n" + r.identity.Phone)
	}
	return b.String()
}

func (r *Renderer) inject(data map[string]any) map[string]any {
	vars := make(map[string]any, len(data)+4)
	maps.Copy(vars, data)
	vars[KeyCurrentTime] = r.now().UTC().Format(TimeFormat)
	vars[KeySenderName] = r.identity.Name
	vars[KeySenderEmail] = r.identity.Email
	vars[KeySenderPhone] = r.identity.Phone
	return vars
}

func (r *Renderer) compile(src string) (*pongo2.Template, error) {
	r.mu.RLock()
	tpl, ok := r.cache[src]
	r.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if tpl, ok := r.cache[src]; ok {
		return tpl, nil
	}

	// Bodies are not HTML documents by default, values are inserted verbatim.
	tpl, err := pongo2.FromString("{% autoescape off %}" + src + "{% endautoescape %}")
	if err != nil {
		return nil, errors.Join(ErrRenderFailed, err)
	}
	r.cache[src] = tpl
	return tpl, nil
}

// checkDefined reports the first {{ output }} expression whose variable path
// does not resolve in vars. Expressions using the default filter and names
// bound by the template itself are skipped.
func checkDefined(src string, vars map[string]any) error {
	bound := boundNames(src)
	for _, m := range outputExpr.FindAllStringSubmatch(src, -1) {
		path, filters := m[1], m[2]
		if strings.Contains(filters, "default") {
			continue
		}
		parts := strings.Split(path, ".")
		if _, ok := builtinNames[parts[0]]; ok {
			continue
		}
		if _, ok := bound[parts[0]]; ok {
			continue
		}
		if !resolves(vars, parts) {
			return fmt.Errorf("%w: %s", ErrUndefinedVariable, path)
		}
	}
	return nil
}

func boundNames(src string) map[string]struct{} {
	bound := make(map[string]struct{})
	for _, m := range forBinding.FindAllStringSubmatch(src, -1) {
		for name := range strings.SplitSeq(m[1], ",") {
			if name = strings.TrimSpace(name); name != "" {
				bound[name] = struct{}{}
			}
		}
	}
	for _, m := range withBinding.FindAllStringSubmatch(src, -1) {
		for _, a := range assignment.FindAllStringSubmatch(m[1], -1) {
			for _, name := range a[1:] {
				if name != "" {
					bound[name] = struct{}{}
				}
			}
		}
	}
	for _, m := range setBinding.FindAllStringSubmatch(src, -1) {
		bound[m[1]] = struct{}{}
	}
	return bound
}

// resolves walks parts through nested maps. Values of any other type end the
// walk successfully since their fields cannot be checked without reflection.
func resolves(v any, parts []string) bool {
	for _, key := range parts {
		switch m := v.(type) {
		case map[string]any:
			next, ok := m[key]
			if !ok {
				return false
			}
			v = next
		case pongo2.Context:
			next, ok := m[key]
			if !ok {
				return false
			}
			v = next
		case map[string]string:
			next, ok := m[key]
			if !ok {
				return false
			}
			v = next
		case nil:
			return false
		default:
			return true
		}
	}
	return true
}

func stringField(v any, key string) string {
	switch m := v.(type) {
	case map[string]any:
		if s, ok := m[key].(string); ok {
			return strings.TrimSpace(s)
		}
		if m[key] != nil {
			return fmt.Sprint(m[key])
		}
	case map[string]string:
		return strings.TrimSpace(m[key])
	}
	return ""
}
