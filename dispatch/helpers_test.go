package dispatch_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/dispatch"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
	"github.com/dmitrymomot/mailroom/pkg/scheduler"
	"github.com/dmitrymomot/mailroom/store"
)

var t0 = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

var identity = mailer.Identity{Name: "Mailroom", Email: "team@example.com"}

type sentMail struct {
	at      time.Time
	to      string
	subject string
	body    string
}

// fakeTransport records deliveries. Recipients in fail get that error,
// panicOn makes Deliver panic.
type fakeTransport struct {
	fail    map[string]error
	panicOn string
	sent    []sentMail
	mu      sync.Mutex
}

func (f *fakeTransport) Deliver(_ context.Context, to, subject, body string) mailer.Result {
	if f.panicOn != "" && to == f.panicOn {
		panic("transport exploded")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{at: time.Now(), to: to, subject: subject, body: body})

	kind := mailer.DetectKind(body)
	if err := f.fail[to]; err != nil {
		return mailer.Result{Kind: kind, Err: err}
	}
	return mailer.Result{Kind: kind, OK: true}
}

func (f *fakeTransport) messages() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

var templates = fstest.MapFS{
	"welcome.md": {Data: []byte("---\nsubject: Welcome aboard\ndescription: First email\n---\n# Hi {{ context.name }}\n\n{{ context.offer }}\n")},
	"note.txt":   {Data: []byte("Note for {{ context.name }}")},
}

func newExecutor(t *testing.T, tr dispatch.Deliverer, opts ...dispatch.ExecutorOption) *dispatch.Executor {
	t.Helper()

	renderer := mailer.NewRenderer(identity, mailer.WithRendererClock(func() time.Time { return t0 }))
	lib, err := mailer.LoadLibrary(templates, renderer)
	require.NoError(t, err)

	opts = append([]dispatch.ExecutorOption{dispatch.WithLibrary(lib), dispatch.WithBulkPause(0)}, opts...)
	return dispatch.NewExecutor(tr, renderer, opts...)
}

type env struct {
	svc       *dispatch.Service
	transport *fakeTransport
	store     *store.Memory
	sched     *scheduler.Scheduler
	clock     *scheduler.FakeClock
}

// newEnv wires a service to a started scheduler on a fake clock and an
// in-memory store. Job ids are "<prefix>_<n>".
func newEnv(t *testing.T, opts ...dispatch.ServiceOption) *env {
	t.Helper()

	clock := scheduler.NewFakeClock(t0)
	sched := scheduler.New(scheduler.WithClock(clock))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sched.Shutdown()(ctx)
	})

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

	tr := &fakeTransport{fail: map[string]error{}}
	st := store.NewMemory()
	base := []dispatch.ServiceOption{dispatch.WithClock(clock.Now), dispatch.WithJobIDs(ids)}
	svc := dispatch.NewService(newExecutor(t, tr), sched, st, append(base, opts...)...)

	return &env{svc: svc, transport: tr, store: st, sched: sched, clock: clock}
}

func (e *env) start(t *testing.T) {
	t.Helper()
	require.NoError(t, e.sched.Start(context.Background()))
}
