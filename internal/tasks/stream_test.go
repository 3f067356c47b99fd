package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/droidcore/mission/internal/actor/actortest"
	"github.com/droidcore/mission/internal/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errConnClosed = errors.New("connection closed")

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer hands out connections from a queue. An empty queue fails the
// dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) push(c *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, c)
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeFetcher struct {
	mu      sync.Mutex
	records []wire.TaskRecord
	calls   int
	err     error
}

func (f *fakeFetcher) ListTasks(ctx context.Context) ([]wire.TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.records, f.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSubmitter struct {
	payloads []wire.TaskPayload
}

func (s *fakeSubmitter) SubmitTask(_ context.Context, p wire.TaskPayload) (string, error) {
	s.payloads = append(s.payloads, p)
	return "new-task", nil
}

type recordingObserver struct {
	mu          sync.Mutex
	connections []bool
	logs        []string
	completed   []Task
}

func (o *recordingObserver) OnConnection(c bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connections = append(o.connections, c)
}

func (o *recordingObserver) OnTaskStarted(Task) {}

func (o *recordingObserver) OnTaskLog(id, msg string, focused bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logs = append(o.logs, id+":"+msg)
}

func (o *recordingObserver) OnTaskCompleted(t Task, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, t)
}

func (o *recordingObserver) OnSnapshot([]Task) {}

func (o *recordingObserver) Connections() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.connections...)
}

const (
	waitFor = time.Second
	tick    = time.Millisecond
)

type harness struct {
	stream  *Stream
	dialer  *fakeDialer
	fetcher *fakeFetcher
	clock   *actortest.FakeClock
	obs     *recordingObserver
	sub     *fakeSubmitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		dialer:  &fakeDialer{},
		fetcher: &fakeFetcher{},
		clock:   actortest.NewFakeClock(received),
		obs:     &recordingObserver{},
		sub:     &fakeSubmitter{},
	}
	h.stream = New(Options{
		Dialer:    h.dialer,
		Fetcher:   h.fetcher,
		Submitter: h.sub,
		Observer:  h.obs,
		Clock:     h.clock,
		Policy:    ReconnectPolicy{Delay: 3 * time.Second},
	})
	t.Cleanup(h.stream.Close)
	return h
}

func (h *harness) waitConnected(t *testing.T, want bool) {
	t.Helper()
	require.Eventually(t, func() bool { return h.stream.Connected() == want }, waitFor, tick)
}

// waitResynced waits until the n-th bulk fetch has been applied.
func (h *harness) waitResynced(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.fetcher.Calls() == n && !h.stream.Snapshot().ResyncInFlight
	}, waitFor, tick)
}

func TestStreamReceivesFrames(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	conn := newFakeConn()
	h.dialer.push(conn)
	h.stream.Run()
	h.waitConnected(t, true)
	h.waitResynced(t, 1)

	conn.frames <- []byte(`{"type":"start","task_id":"t1","persona":"rider"}`)
	conn.frames <- []byte(`not json`)
	conn.frames <- []byte(`{"type":"bogus","task_id":"t1"}`)
	conn.frames <- []byte(`{"type":"log","task_id":"t1","message":"Finding a cab"}`)
	conn.frames <- []byte(`{"type":"complete","task_id":"t1","status":"success","result":{"message":"Cab booked"}}`)

	require.Eventually(t, func() bool {
		task, ok := h.stream.Task("t1")
		return ok && task.Done()
	}, waitFor, tick)

	task, _ := h.stream.Task("t1")
	require.Equal(t, []string{"Finding a cab"}, task.Logs)
	require.Equal(t, received, task.CreatedAt)
	require.True(t, h.stream.Connected())
	require.Equal(t, 1, h.dialer.Dials())

	require.Eventually(t, func() bool {
		h.obs.mu.Lock()
		defer h.obs.mu.Unlock()
		return len(h.obs.completed) == 1
	}, waitFor, tick)
	h.obs.mu.Lock()
	require.Equal(t, []string{"t1:Finding a cab"}, h.obs.logs)
	h.obs.mu.Unlock()
}

func TestStreamUnknownTaskResyncs(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetcher.records = []wire.TaskRecord{{ID: "t9", Persona: "shopper", Status: "running", Logs: []string{"a"}}}
	conn := newFakeConn()
	h.dialer.push(conn)
	h.stream.Run()
	h.waitConnected(t, true)
	h.waitResynced(t, 1)

	conn.frames <- []byte(`{"type":"log","task_id":"t9","message":"b"}`)
	conn.frames <- []byte(`{"type":"log","task_id":"missing","message":"x"}`)

	h.waitResynced(t, 2)

	// The resync replaced the registry, so the earlier log is gone too.
	tasks := h.stream.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, []string{"a"}, tasks[0].Logs)
	_, ok := h.stream.Task("missing")
	require.False(t, ok)
}

func TestStreamReconnectsAfterClose(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	first := newFakeConn()
	h.dialer.push(first)
	h.stream.Run()
	h.waitConnected(t, true)

	_ = first.Close()
	h.waitConnected(t, false)
	require.Eventually(t, func() bool { return h.clock.PendingTimers() == 1 }, waitFor, tick)

	// The first retry fails; exactly one new timer replaces it.
	h.clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool {
		return h.dialer.Dials() == 2 && h.clock.PendingTimers() == 1
	}, waitFor, tick)

	second := newFakeConn()
	h.dialer.push(second)
	h.clock.Advance(time.Second)
	require.Never(t, func() bool { return h.dialer.Dials() > 2 }, 20*time.Millisecond, tick)

	h.clock.Advance(2 * time.Second)
	h.waitConnected(t, true)
	require.Equal(t, 3, h.dialer.Dials())
	require.Zero(t, h.clock.PendingTimers())
	require.Eventually(t, func() bool { return len(h.obs.Connections()) == 3 }, waitFor, tick)
	require.Equal(t, []bool{true, false, true}, h.obs.Connections())
	require.Zero(t, h.stream.Snapshot().Attempts)
}

func TestStreamSubmitDoesNotTouchRegistry(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id, err := h.stream.Submit(context.Background(), wire.NewTaskPayload("rider", map[string]any{"drop": "Airport"}))
	require.NoError(t, err)
	require.Equal(t, "new-task", id)
	require.Empty(t, h.stream.Tasks())
	require.Len(t, h.sub.payloads, 1)
}

func TestStreamSubmitWithoutSubmitter(t *testing.T) {
	t.Parallel()

	s := New(Options{})
	defer s.Close()

	_, err := s.Submit(context.Background(), wire.NewTaskPayload("rider", nil))
	require.ErrorIs(t, err, ErrNoSubmitter)
}

func TestStreamTasksNewestFirst(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetcher.records = []wire.TaskRecord{
		{ID: "old", Status: "success", CreatedAt: "2025-01-01T00:00:00"},
		{ID: "new", Status: "running", CreatedAt: "2025-02-01T00:00:00"},
	}
	h.stream.Resync()
	require.Eventually(t, func() bool { return len(h.stream.Tasks()) == 2 }, waitFor, tick)

	tasks := h.stream.Tasks()
	require.Equal(t, "new", tasks[0].ID)
	require.Equal(t, "old", tasks[1].ID)
}

// gatedFetcher holds every call until release is closed.
type gatedFetcher struct {
	fakeFetcher
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *gatedFetcher) ListTasks(ctx context.Context) ([]wire.TaskRecord, error) {
	f.once.Do(func() { close(f.entered) })
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return f.fakeFetcher.ListTasks(ctx)
}

// stallingObserver parks the loop in its first log callback until resume is
// closed.
type stallingObserver struct {
	recordingObserver
	stalled chan struct{}
	resume  chan struct{}
	once    sync.Once
}

func (o *stallingObserver) OnTaskLog(id, msg string, focused bool) {
	o.once.Do(func() {
		close(o.stalled)
		<-o.resume
	})
	o.recordingObserver.OnTaskLog(id, msg, focused)
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("timed out")
	}
}

func TestStreamFetchResultSurvivesFullMailbox(t *testing.T) {
	t.Parallel()

	fetcher := &gatedFetcher{entered: make(chan struct{}), release: make(chan struct{})}
	obs := &stallingObserver{stalled: make(chan struct{}), resume: make(chan struct{})}
	dialer := &fakeDialer{}
	conn := newFakeConn()
	dialer.push(conn)
	stream := New(Options{
		Dialer:   dialer,
		Fetcher:  fetcher,
		Observer: obs,
		Clock:    actortest.NewFakeClock(received),
	})
	t.Cleanup(stream.Close)

	var releaseOnce, resumeOnce sync.Once
	release := func() { releaseOnce.Do(func() { close(fetcher.release) }) }
	resume := func() { resumeOnce.Do(func() { close(obs.resume) }) }
	t.Cleanup(func() {
		release()
		resume()
	})

	stream.Run()
	waitClosed(t, fetcher.entered)
	require.Eventually(t, stream.Connected, waitFor, tick)

	conn.frames <- []byte(`{"type":"start","task_id":"t1","persona":"rider"}`)
	conn.frames <- []byte(`{"type":"log","task_id":"t1","message":"Finding a cab"}`)
	waitClosed(t, obs.stalled)

	// The loop is parked in the observer, so these fill the mailbox and the
	// rest are dropped.
	for i := 0; i < 300; i++ {
		stream.Focus("t1")
	}

	// The fetch finishes while there is no room for its result.
	release()
	require.Never(t, func() bool { return !stream.Snapshot().ResyncInFlight }, 20*time.Millisecond, tick)

	resume()
	require.Eventually(t, func() bool {
		return fetcher.Calls() == 1 && !stream.Snapshot().ResyncInFlight
	}, waitFor, tick)
	require.Empty(t, stream.Tasks())

	// With the fetch settled, an unknown task triggers the next one.
	conn.frames <- []byte(`{"type":"log","task_id":"missing","message":"x"}`)
	require.Eventually(t, func() bool {
		return fetcher.Calls() == 2 && !stream.Snapshot().ResyncInFlight
	}, waitFor, tick)
}
