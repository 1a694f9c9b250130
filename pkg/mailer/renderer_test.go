package mailer_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

var testIdentity = mailer.Identity{
	Name:  "The Team",
	Email: "team@example.com",
	Phone: "+1 555 0100",
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.FixedZone("X", 3*3600))
}

func newTestRenderer() *mailer.Renderer {
	return mailer.NewRenderer(testIdentity, mailer.WithRendererClock(fixedClock))
}

func TestRenderer_Render(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()

	tests := []struct {
		name     string
		template string
		data     map[string]any
		expected string
	}{
		{
			name:     "top level and nested values",
			template: "{{ subject }} for {{ context.name }}",
			data:     map[string]any{"subject": "Deal", "context": map[string]any{"name": "Ann"}},
			expected: "Deal for Ann",
		},
		{
			name:     "injected sender identity",
			template: "{{ sender_name }} <{{ sender_email }}> {{ sender_phone }}",
			data:     map[string]any{},
			expected: "The Team <team@example.com> +1 555 0100",
		},
		{
			name:     "current time in UTC",
			template: "{{ current_time }}",
			data:     map[string]any{},
			expected: "2026-03-14 06:26:53 UTC",
		},
		{
			name:     "conditional block",
			template: "{% if context.offer %}Offer: {{ context.offer }}{% endif %}",
			data:     map[string]any{"context": map[string]any{"offer": "20% off"}},
			expected: "Offer: 20% off",
		},
		{
			name:     "undefined name inside condition is false",
			template: "a{% if context.missing %}b{% endif %}c",
			data:     map[string]any{"context": map[string]any{}},
			expected: "ac",
		},
		{
			name:     "values are not escaped",
			template: "<p>{{ context.custom_message }}</p>",
			data:     map[string]any{"context": map[string]any{"custom_message": "<b>Hi</b> & bye"}},
			expected: "<p><b>Hi</b> & bye</p>",
		},
		{
			name:     "default filter tolerates missing key",
			template: `{{ context.nickname|default:"friend" }}`,
			data:     map[string]any{"context": map[string]any{}},
			expected: "friend",
		},
		{
			name:     "loop variables are bound",
			template: "{% for item in items %}{{ item }};{% endfor %}",
			data:     map[string]any{"items": []string{"a", "b"}},
			expected: "a;b;",
		},
		{
			name:     "string map context",
			template: "Hi {{ context.name }}",
			data:     map[string]any{"context": map[string]string{"name": "Bo"}},
			expected: "Hi Bo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, r.Render(tt.template, tt.data))
		})
	}
}

func TestRenderer_Fallback(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()

	t.Run("undefined variable falls back with default name", func(t *testing.T) {
		t.Parallel()

		out := r.Render("Hello {{ nope }}", map[string]any{"context": map[string]any{}})
		assert.True(t, strings.HasPrefix(out, "Hi Valued Customer,"))
		assert.Contains(t, out, "Thank you for your interest.")
		assert.Contains(t, out, "Best regards,\nThe Team\nteam@example.com\n+1 555 0100")
	})

	t.Run("undefined nested key falls back with context values", func(t *testing.T) {
		t.Parallel()

		out := r.Render("Hello {{ context.surname }}", map[string]any{
			"context": map[string]any{"name": "Ann", "custom_message": "See you", "offer": "Free tea"},
		})
		assert.Equal(t,
			"Hi Ann,\n\nSee you\n\nFree tea\n\nBest regards,\nThe Team\nteam@example.com\n+1 555 0100",
			out,
		)
	})

	t.Run("malformed template falls back", func(t *testing.T) {
		t.Parallel()

		out := r.Render("{% if %}", map[string]any{"context": map[string]any{"name": "Ann"}})
		assert.True(t, strings.HasPrefix(out, "Hi Ann,"))
	})

	t.Run("missing context map", func(t *testing.T) {
		t.Parallel()

		out := r.Render("{{ context.name }}", nil)
		assert.True(t, strings.HasPrefix(out, "Hi Valued Customer,"))
	})

	t.Run("phone line omitted when not configured", func(t *testing.T) {
		t.Parallel()

		plain := mailer.NewRenderer(mailer.Identity{Name: "Ops", Email: "ops@example.com"})
		out := plain.Fallback(map[string]any{})
		assert.True(t, strings.HasSuffix(out, "Best regards,\nOps\nops@example.com"))
	})
}

func TestRenderer_RenderStrict(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()

	_, err := r.RenderStrict("{{ context.name }}", map[string]any{"context": map[string]any{}})
	require.ErrorIs(t, err, mailer.ErrUndefinedVariable)

	_, err = r.RenderStrict("{% endif %}", map[string]any{})
	require.ErrorIs(t, err, mailer.ErrRenderFailed)
}

func TestRenderer_DefaultTemplate(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	out := r.Render(mailer.DefaultTemplate, map[string]any{
		"subject": "Hello",
		"context": map[string]any{"name": "Ann", "offer": "Special Offer", "custom_message": "Welcome"},
	})

	assert.True(t, strings.HasPrefix(out, "Hi Ann,\n\nWelcome\n"))
	assert.Contains(t, out, "Special Offer")
	assert.Contains(t, out, "Best regards,\nThe Team\nteam@example.com")
	assert.Contains(t, out, "+1 555 0100")
	assert.Equal(t, mailer.KindPlain, mailer.DetectKind(out))
}

func TestRenderer_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	data := map[string]any{"context": map[string]any{"name": "Ann"}}
	newTestRenderer().Render("{{ context.name }}", data)

	assert.Len(t, data, 1)
	assert.NotContains(t, data, mailer.KeyCurrentTime)
}

func TestRenderer_Concurrent(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := []string{"Ann", "Bo"}[i%2]
			out := r.Render("Hi {{ context.name }}", map[string]any{"context": map[string]any{"name": name}})
			assert.Equal(t, "Hi "+name, out)
		}()
	}
	wg.Wait()
}
