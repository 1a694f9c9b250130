package mailer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

func TestParseTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		content     string
		subject     string
		description string
		body        string
		wantErr     error
	}{
		{
			name:        "with frontmatter",
			content:     "---\nsubject: Welcome\ndescription: First contact\n---\nHi {{ context.name }}",
			subject:     "Welcome",
			description: "First contact",
			body:        "Hi {{ context.name }}",
		},
		{
			name:    "crlf line endings",
			content: "---\r\nsubject: Welcome\r\n---\r\nBody",
			subject: "Welcome",
			body:    "Body",
		},
		{
			name:    "no frontmatter",
			content: "Just a body",
			body:    "Just a body",
		},
		{
			name:    "empty frontmatter",
			content: "---\n\n---\nBody",
			body:    "Body",
		},
		{
			name:    "missing closing delimiter",
			content: "---\nsubject: x\nBody",
			wantErr: mailer.ErrInvalidFrontmatter,
		},
		{
			name:    "only opening delimiter",
			content: "---\n",
			wantErr: mailer.ErrInvalidFrontmatter,
		},
		{
			name:    "invalid yaml",
			content: "---\nsubject: [unclosed\n---\nBody",
			wantErr: mailer.ErrInvalidFrontmatter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tpl, err := mailer.ParseTemplate([]byte(tt.content))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.subject, tpl.Frontmatter.Subject)
			assert.Equal(t, tt.description, tpl.Frontmatter.Description)
			assert.Equal(t, tt.body, tpl.Body)
		})
	}
}
