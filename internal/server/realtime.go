package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/mindvault/internal/notes"
	"github.com/MarcoPoloResearchLab/mindvault/internal/organize"
	"github.com/gin-gonic/gin"
)

const (
	RealtimeEventNoteChanged      = "note-change"
	RealtimeEventOrganizeProgress = "organize-progress"
	RealtimeEventOrganizeFinished = "organize-finished"
	realtimeEventHeartbeat        = "heartbeat"
	realtimeSourceBackend         = "mindvault"
)

type RealtimeMessage struct {
	EventType string
	Kind      notes.ChangeKind
	NoteIDs   []string
	Progress  *organize.Progress
	Summary   *organize.Summary
	Timestamp time.Time
}

// realtimePayload is the JSON body of one server-sent event.
type realtimePayload struct {
	Source    string             `json:"source"`
	Kind      notes.ChangeKind   `json:"kind,omitempty"`
	NoteIDs   []string           `json:"noteIds,omitempty"`
	Progress  *organize.Progress `json:"progress,omitempty"`
	Percent   *int               `json:"percent,omitempty"`
	Summary   *organize.Summary  `json:"summary,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish fans message out to every subscriber; slow subscribers miss messages rather than block publishers.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = d.clock().UTC()
	}
	d.mu.RLock()
	if len(d.subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// NoteObserver adapts the dispatcher to the cache's change observer.
func (d *RealtimeDispatcher) NoteObserver() func(notes.ChangeEvent) {
	return func(event notes.ChangeEvent) {
		message := RealtimeMessage{EventType: RealtimeEventNoteChanged, Kind: event.Kind}
		if event.NoteID != "" {
			message.NoteIDs = []string{event.NoteID}
		}
		d.Publish(message)
	}
}

// ProgressObserver adapts the dispatcher to organize progress callbacks.
func (d *RealtimeDispatcher) ProgressObserver() func(organize.Progress) {
	return func(progress organize.Progress) {
		d.Publish(RealtimeMessage{EventType: RealtimeEventOrganizeProgress, Progress: &progress})
	}
}

func (d *RealtimeDispatcher) PublishOrganizeFinished(summary organize.Summary) {
	d.Publish(RealtimeMessage{EventType: RealtimeEventOrganizeFinished, Summary: &summary})
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}

func newRealtimePayload(message RealtimeMessage) realtimePayload {
	payload := realtimePayload{
		Source:    realtimeSourceBackend,
		Kind:      message.Kind,
		NoteIDs:   message.NoteIDs,
		Progress:  message.Progress,
		Summary:   message.Summary,
		Timestamp: message.Timestamp.UnixMilli(),
	}
	if message.Progress != nil {
		percent := message.Progress.Percent()
		payload.Percent = &percent
	}
	return payload
}

func (h *httpHandler) handleNotesStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(message.EventType, newRealtimePayload(message))
			c.Writer.Flush()
		case now := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimePayload{Source: realtimeSourceBackend, Timestamp: now.UnixMilli()})
			c.Writer.Flush()
		}
	}
}
