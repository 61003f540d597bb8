package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/trevanbox/internal/apperr"
	"github.com/starford/trevanbox/internal/models"
)

func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "custom", Data: map[string]string{"path": "a.md"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: custom") || !strings.Contains(s, `"path":"a.md"`) {
			t.Errorf("unexpected message %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNoteProcessed_ProgressThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.NoteProcessed(models.ProcessingResult{File: "a.md", Success: true, Title: "标题"})
	failed := models.ProcessingResult{File: "b.md"}
	failed.Fail(apperr.ErrPersist)
	b.NoteProcessed(failed)

	var notes, progress int
	for _, s := range drain(ch) {
		switch {
		case strings.Contains(s, "event: "+EventBatchProgress):
			progress++
		case strings.Contains(s, "event: "+EventNoteProcessed):
			notes++
		}
	}
	if notes != 2 {
		t.Errorf("note events = %d, want 2", notes)
	}
	if progress != 1 {
		t.Errorf("progress events = %d, want 1 (throttled)", progress)
	}
}

func TestBatchCompleted_OrderedAfterNotes(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	r := models.ProcessingResult{File: "a.md", Success: true, Moved: true}
	b.NoteProcessed(r)
	b.BatchCompleted([]models.DirectoryReport{
		{Dir: "readwise", Results: []models.ProcessingResult{r}},
		{Dir: "follow", Err: errors.New("missing")},
	})

	msgs := drain(ch)
	last := msgs[len(msgs)-1]
	if !strings.Contains(last, "event: "+EventBatchCompleted) {
		t.Fatalf("last event = %q", last)
	}
	if !strings.Contains(last, `"dir":"readwise","succeeded":1,"moved":1,"failed":0`) ||
		!strings.Contains(last, `"error":"missing"`) {
		t.Errorf("payload = %q", last)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.NoteProcessed(models.ProcessingResult{File: "x.md", Success: true})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: note.processed") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "x", Data: nil})
	b.NoteProcessed(models.ProcessingResult{File: "x.md"})
	b.BatchCompleted(nil)
}
