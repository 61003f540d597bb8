// Package sse implements a Server-Sent Events broker for processing updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/trevanbox/internal/models"
)

// Event types.
const (
	EventNoteProcessed  = "note.processed"
	EventBatchProgress  = "batch.progress"
	EventBatchCompleted = "batch.completed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NotePayload is the data of a note.processed event.
type NotePayload struct {
	File    string   `json:"file"`
	Success bool     `json:"success"`
	DryRun  bool     `json:"dry_run"`
	Moved   bool     `json:"moved"`
	Title   string   `json:"title,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Kind    string   `json:"kind,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// DirPayload summarizes one directory in a batch.completed event.
type DirPayload struct {
	Dir       string `json:"dir"`
	Succeeded int    `json:"succeeded"`
	Moved     int    `json:"moved"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// NewNotePayload converts a result for the wire.
func NewNotePayload(r models.ProcessingResult) NotePayload {
	return NotePayload{
		File:    r.File,
		Success: r.Success,
		DryRun:  r.DryRun,
		Moved:   r.Moved,
		Title:   r.Title,
		Tags:    r.Tags,
		Kind:    string(r.Kind),
		Error:   r.ErrorString(),
	}
}

// NewDirPayloads converts batch reports for the wire.
func NewDirPayloads(reports []models.DirectoryReport) []DirPayload {
	out := make([]DirPayload, 0, len(reports))
	for _, rep := range reports {
		d := DirPayload{Dir: rep.Dir, Succeeded: rep.Succeeded(), Moved: rep.Moved(), Failed: rep.Failed()}
		if rep.Err != nil {
			d.Error = rep.Err.Error()
		}
		out = append(out, d)
	}
	return out
}

type progressReq struct {
	note  NotePayload
	batch []DirPayload
	done  bool
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + progress counters and throttle timestamp). Public methods
// communicate with this loop through channels, so no mutexes are required.
type Broker struct {
	progressMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	noteCh        chan progressReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. batch.progress events are emitted at
// most once per progressThrottle.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 2 * time.Second
	}

	b := &Broker{
		progressMin:   progressThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		noteCh:        make(chan progressReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastProgress      time.Time
		processed, failed int
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.noteCh:
			if req.done {
				broadcast(Event{Type: EventBatchCompleted, Data: req.batch})
				processed, failed = 0, 0
				lastProgress = time.Time{}
				continue
			}
			processed++
			if !req.note.Success {
				failed++
			}
			broadcast(Event{Type: EventNoteProcessed, Data: req.note})

			now := time.Now()
			if now.Sub(lastProgress) >= b.progressMin {
				lastProgress = now
				broadcast(Event{Type: EventBatchProgress, Data: map[string]int{"processed": processed, "failed": failed}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// NoteProcessed publishes a note.processed event and a throttled
// batch.progress event with the running counts.
func (b *Broker) NoteProcessed(r models.ProcessingResult) {
	b.sendNote(progressReq{note: NewNotePayload(r)})
}

// BatchCompleted publishes the per-directory summary and resets the
// progress counters.
func (b *Broker) BatchCompleted(reports []models.DirectoryReport) {
	b.sendNote(progressReq{batch: NewDirPayloads(reports), done: true})
}

func (b *Broker) sendNote(req progressReq) {
	if b.closed.Load() {
		return
	}
	select {
	case b.noteCh <- req:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
