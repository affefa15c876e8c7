package logging

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRemoteSinkSendsBatch(t *testing.T) {
	var received int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&received, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewRemoteSink(RemoteConfig{
		URL:       srv.URL,
		BatchSize: 2,
		BatchWait: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRemoteSink: %v", err)
	}
	defer sink.Close()

	sink.Log(Event{Op: "a"})
	sink.Log(Event{Op: "b"})
	sink.Close()

	sent, failed := sink.Stats()
	if sent != 2 {
		t.Errorf("expected 2 sent, got %d (failed=%d)", sent, failed)
	}
	if atomic.LoadInt64(&received) == 0 {
		t.Errorf("expected at least one batch POST")
	}
}

func TestRemoteSinkDegradesGracefullyWhenUnreachable(t *testing.T) {
	sink, err := NewRemoteSink(RemoteConfig{
		URL:       "http://127.0.0.1:1", // nothing listening
		BatchSize: 1,
		BatchWait: 10 * time.Millisecond,
		RetryMax:  1,
		RetryWait: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRemoteSink: %v", err)
	}

	// Log must never block or panic even though every send will fail.
	if err := sink.Log(Event{Op: "x"}); err != nil {
		t.Errorf("Log should never return a network error, got %v", err)
	}
	sink.Close()

	_, failed := sink.Stats()
	if failed == 0 {
		t.Errorf("expected failed count to reflect the unreachable endpoint")
	}
}

func TestMultiSinkFileErrorsPropagateRemoteDoesNot(t *testing.T) {
	file := &fakeFailingSink{}
	m := NewMultiSink(file, nil)
	if err := m.Log(Event{Op: "x"}); err == nil {
		t.Errorf("expected file sink error to propagate")
	}

	withFailingRemote := NewMultiSink(&fakeOKSink{}, &fakeFailingSink{})
	if err := withFailingRemote.Log(Event{Op: "x"}); err != nil {
		t.Errorf("expected remote sink error to be swallowed, got %v", err)
	}
}

type fakeOKSink struct{}

func (f *fakeOKSink) Log(Event) error { return nil }
func (f *fakeOKSink) Close() error    { return nil }

type fakeFailingSink struct{}

func (f *fakeFailingSink) Log(Event) error { return errAlways }
func (f *fakeFailingSink) Close() error    { return nil }

var errAlways = &staticErr{"always fails"}

type staticErr struct{ s string }

func (e *staticErr) Error() string { return e.s }
