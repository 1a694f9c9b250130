package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom"
	"github.com/dmitrymomot/mailroom/dispatch"
	"github.com/dmitrymomot/mailroom/handlers"
	"github.com/dmitrymomot/mailroom/middlewares"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
	"github.com/dmitrymomot/mailroom/pkg/scheduler"
	"github.com/dmitrymomot/mailroom/store"
)

var t0 = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

var errRejected = errors.New("550 mailbox unavailable")

// fakeTransport accepts every message except those to "bounce@example.com".
type fakeTransport struct {
	sent []string
	mu   sync.Mutex
}

func (f *fakeTransport) Deliver(_ context.Context, to, _, body string) mailer.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)

	kind := mailer.DetectKind(body)
	if to == "bounce@example.com" {
		return mailer.Result{Kind: kind, Err: errRejected}
	}
	return mailer.Result{Kind: kind, OK: true}
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type server struct {
	app       *mailroom.App
	transport *fakeTransport
	store     *store.Memory
	sched     *scheduler.Scheduler
}

func newServer(t *testing.T) *server {
	t.Helper()

	identity := mailer.Identity{Name: "Mailroom", Email: "team@example.com"}
	renderer := mailer.NewRenderer(identity, mailer.WithRendererClock(func() time.Time { return t0 }))
	lib, err := mailer.LoadLibrary(fstest.MapFS{
		"welcome.md": {Data: []byte("---\nsubject: Welcome aboard\n---\n# Hi {{ context.name }}\n")},
	}, renderer)
	require.NoError(t, err)

	tr := &fakeTransport{}
	exec := dispatch.NewExecutor(tr, renderer, dispatch.WithLibrary(lib), dispatch.WithBulkPause(0))

	clock := scheduler.NewFakeClock(t0)
	sched := scheduler.New(scheduler.WithClock(clock))

	var (
		mu  sync.Mutex
		seq int
	)
	ids := func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return prefix + "_" + strconv.Itoa(seq)
	}

	st := store.NewMemory()
	svc := dispatch.NewService(exec, sched, st, dispatch.WithClock(clock.Now), dispatch.WithJobIDs(ids))

	app := mailroom.New(
		mailroom.WithErrorHandler(handlers.ErrorHandler),
		mailroom.WithMiddleware(middlewares.RequestID()),
		mailroom.WithHandlers(
			handlers.NewEmails(svc),
			handlers.NewSheets(svc),
			handlers.NewRecords(svc),
			handlers.NewSystem(svc, handlers.SystemConfig{
				Sender:           identity.From(),
				EmailConfigured:  true,
				SchedulerRunning: sched.IsRunning,
				Now:              func() time.Time { return t0 },
			}),
		),
	)
	return &server{app: app, transport: tr, store: st, sched: sched}
}

func (s *server) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.app.ServeHTTP(rec, req)
	return rec
}

func (s *server) upload(t *testing.T, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload-sheet", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.app.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type detailBody struct {
	Detail string `json:"detail"`
}

type fieldsBody struct {
	Detail []struct {
		Loc  []string `json:"loc"`
		Msg  string   `json:"msg"`
		Type string   `json:"type"`
	} `json:"detail"`
}

func future(d time.Duration) string {
	return t0.Add(d).Format(time.RFC3339)
}
