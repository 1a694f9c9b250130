package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom"
	"github.com/dmitrymomot/mailroom/dispatch"
	"github.com/dmitrymomot/mailroom/handlers"
	"github.com/dmitrymomot/mailroom/ingest"
	"github.com/dmitrymomot/mailroom/middlewares"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
	"github.com/dmitrymomot/mailroom/store"
)

func TestEmails_Send(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		body   string
		code   int
		detail string
		msg    string
	}{
		{
			name:   "single success",
			target: "/api/send-email",
			body:   `{"recipient":"ann@example.com","subject":"Hi","context":{"name":"Ann"}}`,
			code:   http.StatusOK,
			msg:    "Email sent successfully to ann@example.com",
		},
		{
			name:   "single delivery failure",
			target: "/api/send-email",
			body:   `{"recipient":"bounce@example.com","subject":"Hi","context":{}}`,
			code:   http.StatusInternalServerError,
			detail: "Failed to send email",
		},
		{
			name:   "unknown template",
			target: "/api/send-email",
			body:   `{"recipient":"ann@example.com","subject":"Hi","context":{},"template_name":"missing"}`,
			code:   http.StatusBadRequest,
		},
		{
			name:   "personalized success",
			target: "/api/send-personalized-email",
			body:   `{"recipient":"ann@example.com","subject":"Hi","email_body":"<p>Hello</p>"}`,
			code:   http.StatusOK,
			msg:    "Personalized email sent successfully to ann@example.com",
		},
		{
			name:   "personalized delivery failure",
			target: "/api/send-personalized-email",
			body:   `{"recipient":"bounce@example.com","subject":"Hi","email_body":"plain"}`,
			code:   http.StatusInternalServerError,
			detail: "Failed to send personalized email",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newServer(t)
			rec := s.do(t, http.MethodPost, tt.target, tt.body)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())

			if tt.detail != "" {
				assert.Equal(t, tt.detail, decode[detailBody](t, rec).Detail)
			}
			if tt.msg != "" {
				resp := decode[dispatch.Response](t, rec)
				assert.Equal(t, "success", resp.Status)
				assert.Equal(t, tt.msg, resp.Message)
			}
		})
	}
}

func TestEmails_SchemaErrors(t *testing.T) {
	t.Parallel()

	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/send-email", `{"recipient":"not-an-address","subject":"Hi"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode[fieldsBody](t, rec)
	require.Len(t, body.Detail, 2)
	locs := [][]string{body.Detail[0].Loc, body.Detail[1].Loc}
	assert.ElementsMatch(t, [][]string{{"body", "context"}, {"body", "recipient"}}, locs)
	assert.Zero(t, s.transport.count())

	rec = s.do(t, http.MethodPost, "/api/send-bulk-email", `{"recipients":[],"subject":"Hi"`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "json_invalid", decode[fieldsBody](t, rec).Detail[0].Type)
}

func TestEmails_Bulk(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/api/send-bulk-email",
		`{"recipients":["ann@example.com","bounce@example.com"],"subject":"Hi","contexts":[{"name":"Ann"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[dispatch.Response](t, rec)
	assert.Equal(t, "Bulk email completed: 1/2 sent successfully", resp.Message)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[1].Success)
	assert.Equal(t, "Ann", resp.Results[1].Context[dispatch.KeyName])

	rec = s.do(t, http.MethodPost, "/api/send-bulk-email", `{"recipients":[],"subject":"Hi","contexts":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmails_ScheduleLifecycle(t *testing.T) {
	t.Parallel()

	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/schedule-email", `{"recipient":"ann@example.com","subject":"Hi","context":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Schedule time is required", decode[detailBody](t, rec).Detail)

	rec = s.do(t, http.MethodPost, "/api/schedule-email",
		`{"recipient":"ann@example.com","subject":"Hi","context":{},"schedule_time":"`+future(-time.Minute)+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Schedule time must be in the future", decode[detailBody](t, rec).Detail)

	rec = s.do(t, http.MethodPost, "/api/schedule-email",
		`{"recipient":"ann@example.com","subject":"Hi","context":{},"schedule_time":"`+future(time.Hour)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[dispatch.Response](t, rec)
	assert.Equal(t, "email_1", resp.JobID)
	assert.Equal(t, "Email scheduled successfully for 2026-03-04 10:30:00 UTC", resp.Message)

	rec = s.do(t, http.MethodPost, "/api/schedule-personalized-email",
		`{"recipient":"bob@example.com","subject":"Hi","email_body":"x","schedule_time":"`+future(2*time.Hour)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/scheduled-emails", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[struct {
		Scheduled []store.ScheduledRecord `json:"scheduled_emails"`
	}](t, rec)
	require.Len(t, listed.Scheduled, 2)
	assert.Equal(t, "email_1", listed.Scheduled[0].JobID)
	assert.Equal(t, "personalized_email_2", listed.Scheduled[1].JobID)

	rec = s.do(t, http.MethodDelete, "/api/scheduled-emails/email_1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, s.sched.Has("email_1"))

	rec = s.do(t, http.MethodDelete, "/api/scheduled-emails/email_1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Scheduled email email_1 not found", decode[detailBody](t, rec).Detail)

	rec = s.do(t, http.MethodGet, "/api/scheduled-emails", "")
	listed = decode[struct {
		Scheduled []store.ScheduledRecord `json:"scheduled_emails"`
	}](t, rec)
	require.Len(t, listed.Scheduled, 1)
	assert.Zero(t, s.transport.count())
}

func TestRecords_Logs(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	for range 3 {
		rec := s.do(t, http.MethodPost, "/api/send-personalized-email",
			`{"recipient":"ann@example.com","subject":"Hi","email_body":"x"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	type logsBody struct {
		Logs []store.Outcome `json:"logs"`
	}

	rec := s.do(t, http.MethodGet, "/api/email-logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[logsBody](t, rec).Logs, 3)

	rec = s.do(t, http.MethodGet, "/api/email-logs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[logsBody](t, rec).Logs
	require.Len(t, logs, 2)
	assert.Equal(t, store.TypePersonalizedImmediate, logs[0].Type)

	rec = s.do(t, http.MethodGet, "/api/email-logs?limit=many", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRecords_EmptyListings(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	assert.JSONEq(t, `{"scheduled_emails":[]}`, s.do(t, http.MethodGet, "/api/scheduled-emails", "").Body.String())
	assert.JSONEq(t, `{"logs":[]}`, s.do(t, http.MethodGet, "/api/email-logs", "").Body.String())
}

func TestSheets(t *testing.T) {
	t.Parallel()

	const csv = "Email,Subject,Body,Name\nann@example.com,Hi,Hello Ann,Ann\nnot-an-email,Hi,x,\nbob@example.com,,Body,Bob\n"

	t.Run("upload previews rows", func(t *testing.T) {
		t.Parallel()

		s := newServer(t)
		rec := s.upload(t, "list.csv", csv, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[handlers.UploadResponse](t, rec)
		require.Len(t, resp.Rows, 1)
		assert.Equal(t, ingest.Row{Email: "ann@example.com", Subject: "Hi", Body: "Hello Ann", Name: "Ann", Line: 2}, resp.Rows[0])
		require.Len(t, resp.Skipped, 1)
		assert.Equal(t, 4, resp.Skipped[0].Line)
	})

	t.Run("custom mapping", func(t *testing.T) {
		t.Parallel()

		s := newServer(t)
		rec := s.upload(t, "list.csv", "to,title,text\nann@example.com,Hi,Hey\n", map[string]string{
			"email_column":   "to",
			"subject_column": "title",
			"body_column":    "text",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, decode[handlers.UploadResponse](t, rec).Rows, 1)
	})

	t.Run("upload errors", func(t *testing.T) {
		t.Parallel()

		s := newServer(t)
		tests := []struct {
			name     string
			filename string
			content  string
			detail   string
		}{
			{"no file", "", "", "No file uploaded"},
			{"unsupported format", "list.pdf", "%PDF", "Unsupported file format, upload .xlsx or .csv"},
			{"missing columns", "list.csv", "address,subject\nann@example.com,Hi\n", "Missing columns: [email body]"},
			{"empty sheet", "list.csv", "\n\n", "The sheet has no usable rows"},
		}
		for _, tt := range tests {
			rec := s.upload(t, tt.filename, tt.content, map[string]string{"note": "x"})
			assert.Equal(t, http.StatusBadRequest, rec.Code, tt.name)
			assert.Equal(t, tt.detail, decode[detailBody](t, rec).Detail, tt.name)
		}
	})

	t.Run("send and schedule rows", func(t *testing.T) {
		t.Parallel()

		s := newServer(t)
		rows := `[{"email":"ann@example.com","subject":"Hi","body":"<p>Hi</p>","name":"Ann"},{"email":"bounce@example.com","subject":"Hi","body":"x","name":null}]`

		rec := s.do(t, http.MethodPost, "/api/send-sheet-emails", `{"emails":`+rows+`}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Bulk email completed: 1/2 sent successfully", decode[dispatch.Response](t, rec).Message)

		rec = s.do(t, http.MethodPost, "/api/schedule-sheet-emails", `{"emails":`+rows+`,"schedule_time":"`+future(time.Hour)+`"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "sheet_email_1", decode[dispatch.Response](t, rec).JobID)

		rec = s.do(t, http.MethodPost, "/api/send-sheet-emails", `{"emails":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSystem(t *testing.T) {
	t.Parallel()

	s := newServer(t)

	t.Run("banner shows the sender", func(t *testing.T) {
		t.Parallel()
		rec := s.do(t, http.MethodGet, "/api/", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "Mailroom &lt;team@example.com&gt;")
	})

	t.Run("templates", func(t *testing.T) {
		t.Parallel()
		rec := s.do(t, http.MethodGet, "/api/templates", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[struct {
			Templates []mailer.TemplateInfo `json:"templates"`
		}](t, rec)
		require.Len(t, body.Templates, 1)
		assert.Equal(t, "welcome", body.Templates[0].Name)
		assert.Equal(t, "Welcome aboard", body.Templates[0].Subject)
	})

	t.Run("health", func(t *testing.T) {
		t.Parallel()
		rec := s.do(t, http.MethodGet, "/api/health", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{
			"status": "healthy",
			"timestamp": "2026-03-04T09:30:00Z",
			"email_configured": true,
			"database_connected": true,
			"scheduler_running": false
		}`, rec.Body.String())
	})
}

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		code   int
		detail string
	}{
		{"panic", &middlewares.PanicError{Value: "boom"}, http.StatusInternalServerError, "Internal Server Error"},
		{"timeout", &middlewares.TimeoutError{Duration: time.Second}, http.StatusGatewayTimeout, "Request timed out"},
		{"validation", &dispatch.ValidationError{Message: "Invalid recipient"}, http.StatusBadRequest, "Invalid recipient"},
		{"job not found", errors.Join(dispatch.ErrJobNotFound, errors.New("missing")), http.StatusNotFound, "Scheduled email not found"},
		{"http error", mailroom.ErrServiceUnavailable("Store unavailable"), http.StatusServiceUnavailable, "Store unavailable"},
		{"plain error", context.DeadlineExceeded, http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := mailroom.New(
				mailroom.WithErrorHandler(handlers.ErrorHandler),
				mailroom.WithHandlers(failing{tt.err}),
			)
			rec := httptest.NewRecorder()
			app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.detail, decode[detailBody](t, rec).Detail)
		})
	}
}

type failing struct{ err error }

func (f failing) Routes(r mailroom.Router) {
	r.GET("/fail", func(mailroom.Context) error { return f.err })
}
