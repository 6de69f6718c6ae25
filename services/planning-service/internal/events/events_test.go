package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/trainingplanner/libs/kafkax"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/dedup"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

type fakeTrigger struct {
	mu    sync.Mutex
	calls []dedup.Request
	errs  []error
}

func (f *fakeTrigger) RunOnce(_ context.Context, req dedup.Request) (dedup.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(f.errs) == 0 {
		return dedup.Report{RunID: "r", PersonID: req.PersonID}, nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return dedup.Report{}, err
}

type fakeReader struct {
	msgs   chan kafka.Message
	closed chan struct{}
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *fakeReader) Close() error {
	close(r.closed)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func submission(person string) kafka.Message {
	body, _ := json.Marshal(Submission{PersonID: person})
	return kafka.Message{Topic: "planning.submitted.v1", Value: body}
}

func TestPublishReport(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, "planning.deduplicated.v1")

	err := p.PublishReport(context.Background(), dedup.Report{RunID: "run-1", PersonID: "p1", Deleted: 2})
	if err != nil {
		t.Fatalf("PublishReport: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "planning.deduplicated.v1" || string(msg.Key) != "p1" {
		t.Fatalf("unexpected routing %s/%s", msg.Topic, msg.Key)
	}
	if kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID) == "" {
		t.Fatalf("expected event id header")
	}
	var got dedup.Report
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-1" || got.Deleted != 2 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestPublishReport_GlobalKeyAndError(t *testing.T) {
	w := &fakeWriter{err: errors.New("no leader")}
	p := NewKafkaPublisher(w, "t")
	err := p.PublishReport(context.Background(), dedup.Report{RunID: "run-2"})
	if err == nil {
		t.Fatal("expected error")
	}
	if string(w.msgs[0].Key) != "all" {
		t.Fatalf("expected key all, got %s", w.msgs[0].Key)
	}
}

func TestHandleMessage(t *testing.T) {
	trig := &fakeTrigger{}
	c := NewConsumer(&fakeReader{}, trig, quietLogger(), ConsumerConfig{})

	if err := c.HandleMessage(context.Background(), submission(" p1 ")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(trig.calls) != 1 || trig.calls[0].PersonID != "p1" {
		t.Fatalf("expected run for p1, got %+v", trig.calls)
	}
}

func TestHandleMessage_DropsMalformed(t *testing.T) {
	trig := &fakeTrigger{}
	c := NewConsumer(&fakeReader{}, trig, quietLogger(), ConsumerConfig{})

	for _, msg := range []kafka.Message{
		{Value: []byte("not json")},
		submission(""),
	} {
		if err := c.HandleMessage(context.Background(), msg); err != nil {
			t.Fatalf("expected malformed message to be dropped, got %v", err)
		}
	}
	if len(trig.calls) != 0 {
		t.Fatalf("expected no runs, got %d", len(trig.calls))
	}
}

func TestHandleMessage_RetriesWhileBusy(t *testing.T) {
	trig := &fakeTrigger{errs: []error{dedup.ErrAlreadyRunning, dedup.ErrAlreadyRunning}}
	c := NewConsumer(&fakeReader{}, trig, quietLogger(), ConsumerConfig{Retries: 3, RetryDelay: time.Millisecond})

	if err := c.HandleMessage(context.Background(), submission("p1")); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(trig.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(trig.calls))
	}
}

func TestHandleMessage_GivesUp(t *testing.T) {
	trig := &fakeTrigger{errs: []error{dedup.ErrAlreadyRunning, dedup.ErrAlreadyRunning, dedup.ErrAlreadyRunning}}
	c := NewConsumer(&fakeReader{}, trig, quietLogger(), ConsumerConfig{Retries: 2, RetryDelay: time.Millisecond})

	if err := c.HandleMessage(context.Background(), submission("p1")); !errors.Is(err, dedup.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if len(trig.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(trig.calls))
	}
}

func TestRun_ConsumesUntilCancelled(t *testing.T) {
	trig := &fakeTrigger{}
	reader := &fakeReader{msgs: make(chan kafka.Message, 2), closed: make(chan struct{})}
	reader.msgs <- submission("p1")
	reader.msgs <- submission("p2")
	c := NewConsumer(reader, trig, quietLogger(), ConsumerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		trig.mu.Lock()
		n := len(trig.calls)
		trig.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 2 runs, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
	select {
	case <-reader.closed:
	default:
		t.Fatal("expected reader to be closed")
	}
}
