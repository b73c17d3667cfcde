package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	"github.com/OFFIS-RIT/threadgraph/internal/stages"
	"github.com/OFFIS-RIT/threadgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/threadgraph/pkg/common"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	queue   string
	body    string
	headers amqp091.Table
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(queueName string, body []byte) error {
	return f.PublishWithHeaders(queueName, body, nil)
}

func (f *fakePublisher) PublishWithHeaders(queueName string, body []byte, headers amqp091.Table) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{queue: queueName, body: string(body), headers: headers})
	return nil
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }
func (f *fakeAck) Nack(_ bool, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}

func TestNames(t *testing.T) {
	names := Names()
	want := []string{"extract_queue", "clean_queue", "triplets_queue", "link_queue", "graph_queue"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
		stage, ok := StageOf(names[i])
		if !ok || Name(stage) != names[i] {
			t.Fatalf("StageOf(%q) = %q, %v", names[i], stage, ok)
		}
	}
	if _, ok := StageOf("index_queue"); ok {
		t.Fatal("expected unknown queue")
	}
}

func TestRetries(t *testing.T) {
	tests := []struct {
		headers amqp091.Table
		want    int
	}{
		{nil, 0},
		{amqp091.Table{"x-retries": int32(3)}, 3},
		{amqp091.Table{"x-retries": int64(4)}, 4},
		{amqp091.Table{"x-retries": 5}, 5},
		{amqp091.Table{"x-retries": "6"}, 0},
	}
	for _, tt := range tests {
		if got := retries(tt.headers); got != tt.want {
			t.Fatalf("retries(%v) = %d, want %d", tt.headers, got, tt.want)
		}
	}

	h := amqp091.Table{"x-retries": int64(2), "trace": "abc"}
	next := retryHeaders(h)
	if next["x-retries"] != int32(3) || next["trace"] != "abc" {
		t.Fatalf("unexpected retry headers: %v", next)
	}
	if h["x-retries"] != int64(2) {
		t.Fatal("retryHeaders must not modify its input")
	}
}

func TestReject(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp091.Table
		fatal   bool
		target  string
	}{
		{"first failure", nil, false, "link_queue_retry"},
		{"out of retries", amqp091.Table{"x-retries": int32(MaxRetries)}, false, "link_queue_dlq"},
		{"fatal", nil, true, "link_queue_dlq"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			ack := &fakeAck{}
			reject(pub, ack, tt.headers, []byte("comments"), "link_queue", tt.fatal)

			if len(pub.msgs) != 1 || pub.msgs[0].queue != tt.target || pub.msgs[0].body != "comments" {
				t.Fatalf("unexpected publish: %+v", pub.msgs)
			}
			if !ack.acked || ack.nacked {
				t.Fatalf("expected ack, got %+v", ack)
			}
		})
	}

	pub := &fakePublisher{err: errors.New("channel closed")}
	ack := &fakeAck{}
	reject(pub, ack, nil, []byte("comments"), "link_queue", false)
	if !ack.nacked || !ack.requeued {
		t.Fatalf("expected requeue when publishing fails, got %+v", ack)
	}
}

func testDeps(t *testing.T) stages.Deps {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "comments.jsonl")
	if err := os.WriteFile(input, []byte(`{"author":"alice","body":"hello there world","created_utc":1}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Extract.Sources = []config.Source{{
		Name:   "comments",
		Path:   input,
		Output: filepath.Join(dir, "extracted", "comments.jsonl"),
		Fields: []config.Field{{From: "author", To: "author"}, {From: "body", To: "body"}},
	}}
	cfg.Clean.Sources = []config.Source{{
		Name:   "comments",
		Path:   filepath.Join(dir, "extracted", "comments.jsonl"),
		Output: filepath.Join(dir, "prepped", "comments.jsonl"),
		Kind:   "comments",
	}}
	cfg.Link.Sources = []config.Source{{Name: "other", Path: "in", Output: "out"}}
	return stages.Deps{Config: cfg, Store: checkpoint.NewMemoryStore()}
}

func TestHandler_ChainsNextStage(t *testing.T) {
	pub := &fakePublisher{}
	h := &Handler{Deps: testDeps(t), Publisher: pub}

	if err := h.Handle(context.Background(), common.StageExtract, "comments"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].queue != "clean_queue" || pub.msgs[0].body != "comments" {
		t.Fatalf("expected clean job, got %+v", pub.msgs)
	}

	st, err := h.Deps.Store.Get(context.Background(), stages.SourceID(common.StageExtract, "comments"))
	if err != nil || !st.Done {
		t.Fatalf("expected extract checkpoint to be done, got %+v, %v", st, err)
	}
}

func TestHandler_NoDownstreamSource(t *testing.T) {
	pub := &fakePublisher{}
	h := &Handler{Deps: testDeps(t), Publisher: pub}

	if err := h.Handle(context.Background(), common.StageExtract, "comments"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pub.msgs = nil

	// clean has no triplets source of the same name
	if err := h.Handle(context.Background(), common.StageClean, "comments"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Fatalf("expected no follow-up job, got %+v", pub.msgs)
	}
}

func TestHandler_Errors(t *testing.T) {
	h := &Handler{Deps: testDeps(t), Publisher: &fakePublisher{}}
	if err := h.Handle(context.Background(), common.StageExtract, ""); err == nil {
		t.Fatal("expected error for empty job")
	}
	if err := h.Handle(context.Background(), common.StageExtract, "missing"); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestHandler_LinkTriggersGraph(t *testing.T) {
	pub := &fakePublisher{}
	h := &Handler{Deps: testDeps(t), Publisher: pub}
	if err := h.chain(common.StageLink, "comments"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].queue != "graph_queue" || pub.msgs[0].body != GraphJob {
		t.Fatalf("expected graph job, got %+v", pub.msgs)
	}
	pub.msgs = nil
	if err := h.chain(common.StageGraph, GraphJob); err != nil || len(pub.msgs) != 0 {
		t.Fatalf("graph stage must not chain, got %+v, %v", pub.msgs, err)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(3723e9); got != "01:02:03" {
		t.Fatalf("unexpected duration %q", got)
	}
}
