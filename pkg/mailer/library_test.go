package mailer_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

func testLibraryFS() fstest.MapFS {
	return fstest.MapFS{
		"welcome.md": &fstest.MapFile{Data: []byte(
			"---\nsubject: Welcome aboard\ndescription: Sent after sign-up\n---\n# Hi {{ context.name }}\n\nEnjoy **{{ context.offer }}**.\n",
		)},
		"plain/reminder.txt": &fstest.MapFile{Data: []byte("Reminder for {{ context.name }}")},
		"notes.json":         &fstest.MapFile{Data: []byte("{}")},
	}
}

func TestLoadLibrary(t *testing.T) {
	t.Parallel()

	lib, err := mailer.LoadLibrary(testLibraryFS(), newTestRenderer())
	require.NoError(t, err)

	list := lib.List()
	require.Len(t, list, 2)
	assert.Equal(t, "plain/reminder", list[0].Name)
	assert.Equal(t, mailer.FormatText, list[0].Format)
	assert.Equal(t, "welcome", list[1].Name)
	assert.Equal(t, "Welcome aboard", list[1].Subject)
	assert.Equal(t, "Sent after sign-up", list[1].Description)
	assert.Equal(t, mailer.FormatMarkdown, list[1].Format)

	_, ok := lib.Lookup("notes")
	assert.False(t, ok)
}

func TestLoadLibrary_InvalidFrontmatter(t *testing.T) {
	t.Parallel()

	_, err := mailer.LoadLibrary(fstest.MapFS{
		"broken.md": &fstest.MapFile{Data: []byte("---\nsubject: x\n")},
	}, newTestRenderer())
	require.ErrorIs(t, err, mailer.ErrInvalidFrontmatter)
}

func TestLoadLibrary_NilFS(t *testing.T) {
	t.Parallel()

	lib, err := mailer.LoadLibrary(nil, newTestRenderer())
	require.NoError(t, err)
	assert.Empty(t, lib.List())
}

func TestLibrary_Render(t *testing.T) {
	t.Parallel()

	lib, err := mailer.LoadLibrary(testLibraryFS(), newTestRenderer())
	require.NoError(t, err)

	data := map[string]any{"context": map[string]any{"name": "Ann", "offer": "tea"}}

	t.Run("markdown becomes html", func(t *testing.T) {
		t.Parallel()

		out, err := lib.Render("welcome", data)
		require.NoError(t, err)
		assert.Contains(t, out, "<h1>Hi Ann</h1>")
		assert.Contains(t, out, "<strong>tea</strong>")
		assert.Equal(t, mailer.KindHTML, mailer.DetectKind(out))
	})

	t.Run("text stays text", func(t *testing.T) {
		t.Parallel()

		out, err := lib.Render("plain/reminder", data)
		require.NoError(t, err)
		assert.Equal(t, "Reminder for Ann", out)
	})

	t.Run("unknown template", func(t *testing.T) {
		t.Parallel()

		_, err := lib.Render("missing", data)
		require.ErrorIs(t, err, mailer.ErrTemplateNotFound)
	})
}
