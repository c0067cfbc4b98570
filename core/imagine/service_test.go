package imagine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeProvider struct {
	statusURL string
	err       error
	calls     atomic.Int64
}

func (p *fakeProvider) CreateJob(ctx context.Context, prompt string) (string, error) {
	p.calls.Add(1)
	return p.statusURL, p.err
}

type fakeArchiver struct {
	mu     sync.Mutex
	seen   []string
	result string
	err    error
}

func (a *fakeArchiver) Archive(ctx context.Context, imageURL, prompt string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, imageURL)
	if a.err != nil {
		return "", a.err
	}
	return a.result, nil
}

func successServer(t *testing.T, output string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","output":["` + output + `"]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestServiceResolvesAndArchives(t *testing.T) {
	srv := successServer(t, "raw-url")
	provider := &fakeProvider{statusURL: srv.URL}
	archiver := &fakeArchiver{result: "archived-url"}

	svc := NewService(Options{
		Provider: provider,
		Archiver: archiver,
		Watcher:  &Watcher{Interval: time.Millisecond, MaxAttempts: 3},
		Workers:  2,
	})
	defer svc.Close()

	done := make(chan string, 1)
	err := svc.Submit(Task{
		UserID: "u1",
		Prompt: "a red fox",
		Done: func(imageURL string, err error) {
			if err != nil {
				t.Errorf("task failed: %v", err)
			}
			done <- imageURL
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case got := <-done:
		if got != "archived-url" {
			t.Fatalf("got %q, want %q", got, "archived-url")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete")
	}

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	if len(archiver.seen) != 1 || archiver.seen[0] != "raw-url" {
		t.Fatalf("archiver saw %v, want [raw-url]", archiver.seen)
	}
}

func TestServiceFallsBackWhenArchiveFails(t *testing.T) {
	srv := successServer(t, "raw-url")
	provider := &fakeProvider{statusURL: srv.URL}
	archiver := &fakeArchiver{err: errors.New("bucket unavailable")}

	svc := NewService(Options{
		Provider: provider,
		Archiver: archiver,
		Watcher:  &Watcher{Interval: time.Millisecond, MaxAttempts: 3},
	})
	defer svc.Close()

	done := make(chan string, 1)
	if err := svc.Submit(Task{Prompt: "p", Done: func(imageURL string, err error) {
		if err != nil {
			t.Errorf("task failed: %v", err)
		}
		done <- imageURL
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case got := <-done:
		if got != "raw-url" {
			t.Fatalf("got %q, want the raw url", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete")
	}
}

func TestServiceReportsProviderFailure(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	provider := &fakeProvider{err: wantErr}

	svc := NewService(Options{
		Provider: provider,
		Watcher:  &Watcher{Interval: time.Millisecond, MaxAttempts: 1},
	})
	defer svc.Close()

	done := make(chan error, 1)
	if err := svc.Submit(Task{Prompt: "p", Done: func(_ string, err error) {
		done <- err
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Fatalf("err = %v, want provider error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete")
	}
}

func TestServiceRequiresCallback(t *testing.T) {
	svc := NewService(Options{Provider: &fakeProvider{}})
	defer svc.Close()

	if err := svc.Submit(Task{Prompt: "p"}); err == nil {
		t.Fatal("Submit without callback should fail")
	}
}

func TestServiceRejectsAfterClose(t *testing.T) {
	svc := NewService(Options{Provider: &fakeProvider{}})
	svc.Close()

	err := svc.Submit(Task{Prompt: "p", Done: func(string, error) {}})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	// Close is idempotent.
	svc.Close()
}

func TestServiceCallsBackEveryTaskOnClose(t *testing.T) {
	srv := successServer(t, "u1")
	provider := &fakeProvider{statusURL: srv.URL}

	svc := NewService(Options{
		Provider: provider,
		Watcher:  &Watcher{Interval: time.Millisecond, MaxAttempts: 3},
		Workers:  1,
	})

	const tasks = 5
	var completed atomic.Int64
	for i := 0; i < tasks; i++ {
		if err := svc.Submit(Task{Prompt: "p", Done: func(string, error) {
			completed.Add(1)
		}}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	svc.Close()

	// Tasks still queued at Close fail fast on the canceled context, but
	// every one of them gets its callback.
	if n := completed.Load(); n != tasks {
		t.Fatalf("completed %d tasks, want %d", n, tasks)
	}
}

func TestCloseAbortsInFlightPoll(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"status":"processing"}`))
	}))
	t.Cleanup(srv.Close)
	provider := &fakeProvider{statusURL: srv.URL}

	svc := NewService(Options{
		Provider: provider,
		Watcher:  &Watcher{Interval: 100 * time.Millisecond, MaxAttempts: 50},
		Workers:  1,
	})

	taskErr := make(chan error, 1)
	if err := svc.Submit(Task{Prompt: "p", Done: func(_ string, err error) {
		taskErr <- err
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Let the watch reach its first poll so Close interrupts a live wait.
	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if hits.Load() == 0 {
		t.Fatal("watcher never polled")
	}

	start := time.Now()
	svc.Close()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Close blocked %s instead of aborting the poll", elapsed)
	}

	select {
	case err := <-taskErr:
		if err == nil {
			t.Fatal("aborted task must report an error")
		}
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want a canceled-context failure", err)
		}
	case <-time.After(time.Second):
		t.Fatal("task callback never fired")
	}
}
