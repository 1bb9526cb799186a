package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/zhouzirui/mathta/backend/internal/service/session"
)

// Review 一轮输入的助教点评
type Review struct {
	SessionID string
	Note      string
	At        time.Time
}

// LogSink 只记录每轮输入，不做额外处理
type LogSink struct{}

func (LogSink) SubmitTurn(_ context.Context, turn session.TurnSubmission) {
	log.Printf("[pipeline] turn session=%s source=%s transcript_len=%d has_snapshot=%t",
		turn.SessionID, turn.Source, len(turn.Transcript), turn.Snapshot != "")
}

// Fanout 依次把每轮输入交给多个 sink
type Fanout []session.TurnSink

func (f Fanout) SubmitTurn(ctx context.Context, turn session.TurnSubmission) {
	for _, sink := range f {
		if sink != nil {
			sink.SubmitTurn(ctx, turn)
		}
	}
}
