package liveview

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/lvstream/internal/fakecam"
	"github.com/danmuck/lvstream/internal/testutil/testlog"
)

func waitClosed(t *testing.T, rec *recorder) {
	t.Helper()
	select {
	case <-rec.closedSig:
	case <-time.After(5 * time.Second):
		t.Fatalf("closed notification not fired")
	}
}

func waitState(t *testing.T, p *Processor, want ConnectionState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for p.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state=%s want=%s", p.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitImages(t *testing.T, rec *recorder, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if images, _, _, _ := rec.counts(); images >= want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d images", want)
		}
		time.Sleep(time.Millisecond)
	}
}

func expectNoClosed(t *testing.T, rec *recorder) {
	t.Helper()
	select {
	case <-rec.closedSig:
		t.Fatalf("closed notification fired for a connection that never opened")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOpenConnectionRejectsEmptyTarget(t *testing.T) {
	testlog.Start(t)
	p := NewProcessor(newRecorder(), Config{})
	for _, target := range []string{"", "   ", "ftp://camera/liveview", "::not a url"} {
		ok, err := p.OpenConnection(context.Background(), target, 0)
		if ok || !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("target %q: ok=%v err=%v", target, ok, err)
		}
		if p.State() != Closed {
			t.Fatalf("state changed on invalid argument: %s", p.State())
		}
	}
}

func TestOpenConnectionStreamsUntilEndOfStream(t *testing.T) {
	testlog.Start(t)
	cam := fakecam.New(fakecam.Options{Width: 64, Height: 48, Frames: 6, FocusEvery: 3, Padding: 5})
	srv := httptest.NewServer(cam)
	defer srv.Close()

	rec := newRecorder()
	p := NewProcessor(rec, Config{})
	ok, err := p.OpenConnection(context.Background(), srv.URL, time.Second)
	if err != nil || !ok {
		t.Fatalf("open: ok=%v err=%v", ok, err)
	}
	waitClosed(t, rec)
	waitState(t, p, Closed)

	images, focus, _, closed := rec.counts()
	if images != 6 || focus != 2 {
		t.Fatalf("unexpected packets images=%d focus=%d", images, focus)
	}
	if closed != 1 {
		t.Fatalf("closed fired %d times", closed)
	}
	if rec.images[0].Width != 64 || rec.images[0].Height != 48 {
		t.Fatalf("unexpected image size %dx%d", rec.images[0].Width, rec.images[0].Height)
	}
}

func TestOpenConnectionNonOKStatus(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := newRecorder()
	p := NewProcessor(rec, Config{})
	ok, err := p.OpenConnection(context.Background(), srv.URL, time.Second)
	if err != nil || ok {
		t.Fatalf("open: ok=%v err=%v", ok, err)
	}
	if p.State() != Closed {
		t.Fatalf("state=%s", p.State())
	}
	if _, _, _, closed := rec.counts(); closed != 0 {
		t.Fatalf("closed must not fire for a failed connect")
	}
}

func TestOpenConnectionSendsCacheBypassHeaders(t *testing.T) {
	testlog.Start(t)
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := newRecorder()
	p := NewProcessor(rec, Config{})
	if ok, err := p.OpenConnection(context.Background(), srv.URL, time.Second); err != nil || !ok {
		t.Fatalf("open: ok=%v err=%v", ok, err)
	}
	h := <-headers
	if h.Get("Cache-Control") != "no-cache" || h.Get("Pragma") != "no-cache" {
		t.Fatalf("missing cache bypass headers: %v", h)
	}
	waitClosed(t, rec)
}

func TestOpenConnectionTimeout(t *testing.T) {
	testlog.Start(t)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := newRecorder()
	p := NewProcessor(rec, Config{})
	start := time.Now()
	ok, err := p.OpenConnection(context.Background(), srv.URL, 50*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("open: ok=%v err=%v", ok, err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not honoured: %v", elapsed)
	}
	if p.State() != Closed {
		t.Fatalf("state=%s", p.State())
	}
}

func TestOpenConnectionContextCancel(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := NewProcessor(newRecorder(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	ok, err := p.OpenConnection(ctx, srv.URL, 5*time.Second)
	if err != nil || ok {
		t.Fatalf("open: ok=%v err=%v", ok, err)
	}
	if p.State() != Closed {
		t.Fatalf("state=%s", p.State())
	}
}

func TestOpenConnectionTwiceIssuesOneRequest(t *testing.T) {
	testlog.Start(t)
	cam := fakecam.New(fakecam.Options{Width: 8, Height: 8, FrameInterval: 5 * time.Millisecond})
	srv := httptest.NewServer(cam)
	defer srv.Close()

	rec := newRecorder()
	p := NewProcessor(rec, Config{})
	if ok, err := p.OpenConnection(context.Background(), srv.URL, time.Second); err != nil || !ok {
		t.Fatalf("first open: ok=%v err=%v", ok, err)
	}
	if ok, err := p.OpenConnection(context.Background(), srv.URL, time.Second); err != nil || !ok {
		t.Fatalf("second open: ok=%v err=%v", ok, err)
	}
	if got := cam.Requests(); got != 1 {
		t.Fatalf("requests=%d want=1", got)
	}
	if p.State() != Connected {
		t.Fatalf("state=%s", p.State())
	}
	p.CloseConnection()
	waitClosed(t, rec)
}

func TestConcurrentCloseFiresClosedOnce(t *testing.T) {
	testlog.Start(t)
	cam := fakecam.New(fakecam.Options{Width: 8, Height: 8, FrameInterval: time.Millisecond, FocusEvery: 2})
	srv := httptest.NewServer(cam)
	defer srv.Close()

	var images atomic.Int64
	firstImage := make(chan struct{})
	var once sync.Once
	closedSig := make(chan struct{}, 4)
	var closed atomic.Int64
	p := NewProcessor(HandlerFuncs{
		Image: func(ImagePacket) {
			images.Add(1)
			once.Do(func() { close(firstImage) })
		},
		Closed: func() {
			closed.Add(1)
			closedSig <- struct{}{}
		},
	}, Config{})

	if ok, err := p.OpenConnection(context.Background(), srv.URL, time.Second); err != nil || !ok {
		t.Fatalf("open: ok=%v err=%v", ok, err)
	}
	<-firstImage

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.CloseConnection()
		}()
	}
	wg.Wait()
	if p.State() != Closed {
		t.Fatalf("state=%s after close", p.State())
	}

	select {
	case <-closedSig:
	case <-time.After(5 * time.Second):
		t.Fatalf("closed notification not fired")
	}
	atClose := images.Load()
	time.Sleep(30 * time.Millisecond)
	if got := images.Load(); got > atClose {
		t.Fatalf("packets emitted after closed notification: %d > %d", got, atClose)
	}
	if got := closed.Load(); got != 1 {
		t.Fatalf("closed fired %d times", got)
	}
}

func TestProtocolErrorClosesStream(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte{0x00, 0x01, 0, 0, 0, 0, 0, 0})
		<-r.Context().Done()
	}))
	defer srv.Close()

	rec := newRecorder()
	p := NewProcessor(rec, Config{})
	if ok, err := p.OpenConnection(context.Background(), srv.URL, time.Second); err != nil || !ok {
		t.Fatalf("open: ok=%v err=%v", ok, err)
	}
	waitClosed(t, rec)
	waitState(t, p, Closed)
	if _, _, _, closed := rec.counts(); closed != 1 {
		t.Fatalf("closed fired %d times", closed)
	}
}

func TestReopenAfterClose(t *testing.T) {
	testlog.Start(t)
	cam := fakecam.New(fakecam.Options{Width: 8, Height: 8, FrameInterval: 2 * time.Millisecond})
	srv := httptest.NewServer(cam)
	defer srv.Close()

	rec := newRecorder()
	p := NewProcessor(rec, Config{})
	for i := 0; i < 2; i++ {
		if ok, err := p.OpenConnection(context.Background(), srv.URL, time.Second); err != nil || !ok {
			t.Fatalf("open %d: ok=%v err=%v", i, ok, err)
		}
		if !p.IsProcessing() {
			t.Fatalf("open %d: not processing", i)
		}
		p.CloseConnection()
		waitClosed(t, rec)
	}
	if got := cam.Requests(); got != 2 {
		t.Fatalf("requests=%d want=2", got)
	}
	if _, _, _, closed := rec.counts(); closed != 2 {
		t.Fatalf("closed fired %d times, want once per connection", closed)
	}
}

func TestStateWordPacking(t *testing.T) {
	testlog.Start(t)
	w := packState(41, Connected)
	if w.gen() != 41 || w.state() != Connected {
		t.Fatalf("unpack gen=%d state=%s", w.gen(), w.state())
	}
	if packState(41, Closed) == packState(42, Closed) {
		t.Fatalf("generations must differ")
	}
	if ConnectionState(3).String() != "state(3)" {
		t.Fatalf("unexpected name %q", ConnectionState(3).String())
	}
}

func TestCloseConnectionReleasesQuietStream(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	writeFrame(t, &buf, imageFrame(4, 4, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0))
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	}))
	defer srv.Close()

	rec := newRecorder()
	p := NewProcessor(rec, Config{})
	if ok, err := p.OpenConnection(context.Background(), srv.URL, time.Second); err != nil || !ok {
		t.Fatalf("open: ok=%v err=%v", ok, err)
	}
	waitImages(t, rec, 1)

	p.CloseConnection()
	waitClosed(t, rec)
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatalf("camera connection still held after close")
	}
	if p.State() != Closed {
		t.Fatalf("state=%s", p.State())
	}
	if _, _, _, closed := rec.counts(); closed != 1 {
		t.Fatalf("closed fired %d times", closed)
	}
}

func TestCloseWhileConnectingDropsLateResponse(t *testing.T) {
	testlog.Start(t)
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
			close(released)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	}))
	defer srv.Close()

	rec := newRecorder()
	p := NewProcessor(rec, Config{})
	result := make(chan bool, 1)
	go func() {
		ok, err := p.OpenConnection(context.Background(), srv.URL, 5*time.Second)
		if err != nil {
			t.Errorf("open: %v", err)
		}
		result <- ok
	}()

	<-arrived
	if p.State() != Connecting {
		t.Fatalf("state=%s want=connecting", p.State())
	}
	p.CloseConnection()
	if p.State() != Closed {
		t.Fatalf("state=%s after close", p.State())
	}
	close(release)

	select {
	case ok := <-result:
		if ok {
			t.Fatalf("open reported success after close")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("open never resolved")
	}
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatalf("late response body not closed")
	}
	if p.State() != Closed {
		t.Fatalf("state=%s", p.State())
	}
	expectNoClosed(t, rec)
}

func TestTimeoutAndResponseRaceHasOneOutcome(t *testing.T) {
	testlog.Start(t)
	const delay = 15 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	rec := newRecorder()
	p := NewProcessor(rec, Config{})
	opened := 0
	for i := 0; i < 20; i++ {
		ok, err := p.OpenConnection(context.Background(), srv.URL, delay)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !ok {
			if p.State() != Closed {
				t.Fatalf("attempt %d: failed open left state=%s", i, p.State())
			}
			continue
		}
		opened++
		if p.State() != Connected {
			t.Fatalf("attempt %d: successful open left state=%s", i, p.State())
		}
		p.CloseConnection()
		waitClosed(t, rec)
	}
	expectNoClosed(t, rec)
	if _, _, _, closed := rec.counts(); closed != opened {
		t.Fatalf("closed fired %d times for %d connections", closed, opened)
	}
}

func TestOnlyFirstTransitionOutOfConnectingApplies(t *testing.T) {
	testlog.Start(t)
	p := NewProcessor(newRecorder(), Config{})
	connecting := packState(1, Connecting)
	p.word.Store(uint64(connecting))

	if !p.swap(connecting, packState(1, Closed)) {
		t.Fatalf("timeout transition rejected")
	}
	if p.swap(connecting, packState(1, Connected)) {
		t.Fatalf("late success overrode the timeout")
	}
	if p.State() != Closed {
		t.Fatalf("state=%s", p.State())
	}
}

func TestStaleCloseDoesNotAbortNewerConnection(t *testing.T) {
	testlog.Start(t)
	p := NewProcessor(newRecorder(), Config{})
	cancelled := false
	p.conn.Store(&connHandle{gen: 2, cancel: func() { cancelled = true }})
	p.release(1)
	if cancelled {
		t.Fatalf("release of generation 1 cancelled generation 2")
	}
	p.release(2)
	if !cancelled {
		t.Fatalf("release of current generation did not cancel")
	}
}
