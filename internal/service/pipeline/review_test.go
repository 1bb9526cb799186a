package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/mathta/backend/internal/model/tutor"
	"github.com/zhouzirui/mathta/backend/internal/service/pipeline"
	"github.com/zhouzirui/mathta/backend/internal/service/session"
)

type fakeChatModel struct {
	mu    sync.Mutex
	calls [][]*schema.Message
	reply string
	err   error
}

func (f *fakeChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) lastCall(t *testing.T) []*schema.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatalf("model was never called")
	}
	return f.calls[len(f.calls)-1]
}

func newSink(t *testing.T, m *fakeChatModel, notify pipeline.Notifier) *pipeline.ReviewSink {
	t.Helper()
	tutors := tutor.Seed()
	sink, err := pipeline.NewReviewSink(context.Background(), m, tutors[0], time.Second, notify)
	if err != nil {
		t.Fatalf("NewReviewSink err: %v", err)
	}
	return sink
}

func TestReviewBuildsMultimodalTurn(t *testing.T) {
	m := &fakeChatModel{reply: "Concept: chain rule. Try differentiating the inner function first."}
	sink := newSink(t, m, nil)

	review, err := sink.Review(context.Background(), session.TurnSubmission{
		SessionID:  "s1",
		Transcript: "How do I differentiate sin(x^2)?",
		Snapshot:   "data:image/jpeg;base64,AAAA",
	})
	if err != nil {
		t.Fatalf("Review err: %v", err)
	}
	if !strings.Contains(review.Note, "chain rule") || review.SessionID != "s1" {
		t.Fatalf("unexpected review: %+v", review)
	}

	msgs := m.lastCall(t)
	if len(msgs) != 2 {
		t.Fatalf("expected system + turn, got %d messages", len(msgs))
	}
	if msgs[0].Role != schema.System || !strings.Contains(msgs[0].Content, "TA note") {
		t.Fatalf("unexpected system message: %+v", msgs[0])
	}
	turn := msgs[1]
	if turn.Role != schema.User || len(turn.MultiContent) != 2 {
		t.Fatalf("expected multimodal user message, got %+v", turn)
	}
	if turn.MultiContent[1].ImageURL == nil || turn.MultiContent[1].ImageURL.URL != "data:image/jpeg;base64,AAAA" {
		t.Fatalf("snapshot not attached: %+v", turn.MultiContent[1])
	}
}

func TestReviewCarriesSessionHistory(t *testing.T) {
	m := &fakeChatModel{reply: "Keep going."}
	sink := newSink(t, m, nil)
	ctx := context.Background()

	if _, err := sink.Review(ctx, session.TurnSubmission{SessionID: "s1", Transcript: "first"}); err != nil {
		t.Fatalf("first review: %v", err)
	}
	if _, err := sink.Review(ctx, session.TurnSubmission{SessionID: "s1", Transcript: "second"}); err != nil {
		t.Fatalf("second review: %v", err)
	}

	msgs := m.lastCall(t)
	if len(msgs) != 4 {
		t.Fatalf("expected system + 2 history + turn, got %d", len(msgs))
	}
	if msgs[1].Content != "first" || msgs[2].Role != schema.Assistant || msgs[3].Content != "second" {
		t.Fatalf("unexpected history ordering: %+v", msgs)
	}

	sink.Forget("s1")
	if _, err := sink.Review(ctx, session.TurnSubmission{SessionID: "s1", Transcript: "third"}); err != nil {
		t.Fatalf("third review: %v", err)
	}
	if got := len(m.lastCall(t)); got != 2 {
		t.Fatalf("history should be cleared, got %d messages", got)
	}
}

func TestReviewRejectsEmptyTurn(t *testing.T) {
	sink := newSink(t, &fakeChatModel{reply: "x"}, nil)
	_, err := sink.Review(context.Background(), session.TurnSubmission{SessionID: "s1", Transcript: "   "})
	if !errors.Is(err, pipeline.ErrEmptyTurn) {
		t.Fatalf("expected ErrEmptyTurn, got %v", err)
	}
}

func TestSubmitTurnNotifiesAsync(t *testing.T) {
	var (
		mu  sync.Mutex
		got []pipeline.Review
	)
	m := &fakeChatModel{reply: "Nice setup."}
	sink := newSink(t, m, func(r pipeline.Review) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})

	sink.SubmitTurn(context.Background(), session.TurnSubmission{SessionID: "s2", Transcript: "integral of x"})
	sink.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].SessionID != "s2" || got[0].Note != "Nice setup." {
		t.Fatalf("unexpected notifications: %+v", got)
	}
}

func TestSubmitTurnModelFailureSkipsNotify(t *testing.T) {
	called := false
	m := &fakeChatModel{err: errors.New("upstream down")}
	sink := newSink(t, m, func(pipeline.Review) { called = true })

	sink.SubmitTurn(context.Background(), session.TurnSubmission{SessionID: "s3", Transcript: "help"})
	sink.Wait()

	if called {
		t.Fatalf("notify should not fire on failure")
	}
}

func TestFanoutDeliversToAll(t *testing.T) {
	var seen []string
	record := func(name string) session.TurnSink {
		return session.TurnSinkFunc(func(_ context.Context, turn session.TurnSubmission) {
			seen = append(seen, name+":"+turn.Transcript)
		})
	}

	pipeline.Fanout{pipeline.LogSink{}, record("a"), nil, record("b")}.
		SubmitTurn(context.Background(), session.TurnSubmission{Transcript: "hi"})

	if strings.Join(seen, ",") != "a:hi,b:hi" {
		t.Fatalf("unexpected fanout order: %v", seen)
	}
}
