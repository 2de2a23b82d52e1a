package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/roomchat/internal/auth"
)

const testRoom = "42"

var testCreds = auth.Credentials{Token: "token", Identity: "me@example.com"}

// testCodec is a minimal JSON codec: {"senderEmail","message","messageType"}.
type testCodec struct{}

type testFrame struct {
	Sender string `json:"senderEmail"`
	Body   string `json:"message"`
	Type   string `json:"messageType,omitempty"`
}

func (testCodec) Topic(room string) string       { return "/topic/chat/" + room }
func (testCodec) Destination(room string) string { return "/app/chat/" + room }

func (testCodec) Decode(body []byte) (Message, error) {
	var f testFrame
	if err := json.Unmarshal(body, &f); err != nil {
		return Message{}, err
	}
	if f.Sender == "" && f.Body == "" {
		return Message{}, errors.New("empty record")
	}
	return Message{Sender: f.Sender, Body: f.Body, Kind: KindChat}, nil
}

func (testCodec) Encode(out Outbound) ([]byte, error) {
	return json.Marshal(testFrame{Sender: out.Sender, Body: out.Body, Type: string(out.Kind)})
}

func frame(sender, body string) Frame {
	b, _ := json.Marshal(testFrame{Sender: sender, Body: body})
	return Frame{Body: b}
}

type fakeSub struct {
	dest   string
	frames chan Frame
	ops    *opLog
}

func (s *fakeSub) Frames() <-chan Frame { return s.frames }

func (s *fakeSub) Unsubscribe() error {
	s.ops.add("unsubscribe")
	return nil
}

type published struct {
	dest string
	body []byte
}

type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	l.ops = append(l.ops, op)
	l.mu.Unlock()
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

type fakeChannel struct {
	mu         sync.Mutex
	ops        opLog
	subs       []*fakeSub
	published  []published
	closed     bool
	publishErr error
}

func (c *fakeChannel) Subscribe(dest string) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := &fakeSub{dest: dest, frames: make(chan Frame, 16), ops: &c.ops}
	c.subs = append(c.subs, sub)
	c.ops.add("subscribe")
	return sub, nil
}

func (c *fakeChannel) Publish(dest string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{dest: dest, body: body})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.ops.add("close")
	return nil
}

func (c *fakeChannel) sub(t *testing.T) *fakeSub {
	t.Helper()
	waitFor(t, "subscription", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.subs) > 0
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[0]
}

func (c *fakeChannel) publishes() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer answers each Dial with next(n), n counting from 1.
type fakeDialer struct {
	mu    sync.Mutex
	calls int
	next  func(n int) (Channel, error)
}

func (d *fakeDialer) Dial(_ context.Context, _ auth.Credentials) (Channel, error) {
	d.mu.Lock()
	d.calls++
	n := d.calls
	next := d.next
	d.mu.Unlock()
	if next == nil {
		return &fakeChannel{}, nil
	}
	return next(n)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// channelsDialer hands out a fresh fakeChannel per dial and remembers them.
func channelsDialer() (*fakeDialer, func(i int) *fakeChannel) {
	var mu sync.Mutex
	var chans []*fakeChannel
	d := &fakeDialer{}
	d.next = func(int) (Channel, error) {
		ch := &fakeChannel{}
		mu.Lock()
		chans = append(chans, ch)
		mu.Unlock()
		return ch, nil
	}
	get := func(i int) *fakeChannel {
		var ch *fakeChannel
		waitForNoT(func() bool {
			mu.Lock()
			defer mu.Unlock()
			if len(chans) > i {
				ch = chans[i]
				return true
			}
			return false
		})
		return ch
	}
	return d, get
}

type recordingReporter struct {
	mu        sync.Mutex
	decode    []error
	connect   []error
	exhausted []int
}

func (r *recordingReporter) DecodeFailure(_ string, _ []byte, err error) {
	r.mu.Lock()
	r.decode = append(r.decode, err)
	r.mu.Unlock()
}

func (r *recordingReporter) ConnectFailure(_ string, _ int, err error) {
	r.mu.Lock()
	r.connect = append(r.connect, err)
	r.mu.Unlock()
}

func (r *recordingReporter) RetriesExhausted(_ string, attempts int) {
	r.mu.Lock()
	r.exhausted = append(r.exhausted, attempts)
	r.mu.Unlock()
}

func (r *recordingReporter) decodeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.decode)
}

func (r *recordingReporter) exhaustedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exhausted)
}

type fakeRoomAPI struct {
	mu         sync.Mutex
	hold       chan struct{} // History blocks until closed, when set
	history    []Message
	historyErr error
	readErr    error
	reads      int
}

func (a *fakeRoomAPI) History(ctx context.Context, _ string, _ auth.Credentials) ([]Message, error) {
	a.mu.Lock()
	hold := a.hold
	a.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history, a.historyErr
}

func (a *fakeRoomAPI) MarkRead(_ context.Context, _ string, _ auth.Credentials) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reads++
	return a.readErr
}

func (a *fakeRoomAPI) readCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reads
}

type harness struct {
	session  *Session
	dialer   *fakeDialer
	clock    *clock.Mock
	reporter *recordingReporter
	api      *fakeRoomAPI
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, dialer *fakeDialer, opts Options) *harness {
	t.Helper()

	h := &harness{
		dialer:   dialer,
		clock:    clock.NewMock(),
		reporter: &recordingReporter{},
		api:      &fakeRoomAPI{},
	}
	h.session = NewSession(testRoom, Deps{
		Dialer:   dialer,
		Codec:    testCodec{},
		History:  h.api,
		Reads:    h.api,
		Reporter: h.reporter,
		Clock:    h.clock,
	}, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.cancel = cancel
	t.Cleanup(cancel)
	go func() { _ = h.session.Run(ctx) }()
	return h
}

// inLoop runs fn on the session loop and waits for it.
func (h *harness) inLoop(t *testing.T, fn func(s *Session)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.session.exec(ctx, func() { fn(h.session) }); err != nil {
		t.Fatalf("exec on loop: %v", err)
	}
}

func (h *harness) retryPending(t *testing.T) bool {
	t.Helper()
	var pending bool
	h.inLoop(t, func(s *Session) { pending = s.retry != nil })
	return pending
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	if !waitForNoT(cond) {
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitForNoT(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func mustState(t *testing.T, s *Session, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return s.State() == want })
}

func mustEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return Event{}
}

func mustNotice(t *testing.T, ch <-chan Event, kind NoticeKind) Notice {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev := mustEvent(t, ch, EventNotice)
		if ev.Notice != nil && ev.Notice.Kind == kind {
			return *ev.Notice
		}
	}
	t.Fatalf("expected notice kind %v not received", kind)
	return Notice{}
}

// drainNotices counts notices of a kind currently buffered.
func drainNotices(ch <-chan Event, kind NoticeKind) int {
	n := 0
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return n
			}
			if ev.Kind == EventNotice && ev.Notice.Kind == kind {
				n++
			}
		default:
			return n
		}
	}
}

var errBoom = errors.New("boom")
