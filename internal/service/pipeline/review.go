package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/mathta/backend/internal/model/tutor"
	"github.com/zhouzirui/mathta/backend/internal/service/session"
)

const (
	historyLimit         = 6
	defaultReviewTimeout = 30 * time.Second
	emptyTranscriptText  = "(no transcript, see the whiteboard photo)"
)

// ErrEmptyTurn 没有文字也没有截图
var ErrEmptyTurn = errors.New("turn has neither transcript nor snapshot")

// Notifier 接收点评结果
type Notifier func(Review)

// ReviewSink 使用 eino 链为每轮输入生成简短的 TA note，异步回调结果。
type ReviewSink struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	system  string
	timeout time.Duration
	notify  Notifier

	mu      sync.Mutex
	history map[string][]*schema.Message

	wg sync.WaitGroup
}

// NewReviewSink 编译点评链：系统提示词 → 历史 → 本轮多模态消息 → 模型。
func NewReviewSink(ctx context.Context, chatModel model.BaseChatModel, t tutor.Tutor, timeout time.Duration, notify Notifier) (*ReviewSink, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if timeout <= 0 {
		timeout = defaultReviewTimeout
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.MessagesPlaceholder("turn", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile review chain: %w", err)
	}

	return &ReviewSink{
		chain:   runnable,
		system:  t.ReviewPrompt(),
		timeout: timeout,
		notify:  notify,
		history: make(map[string][]*schema.Message),
	}, nil
}

// SubmitTurn 后台生成点评，不阻塞会话。
func (s *ReviewSink) SubmitTurn(_ context.Context, turn session.TurnSubmission) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		review, err := s.Review(ctx, turn)
		if err != nil {
			log.Printf("[pipeline] review failed session=%s: %v", turn.SessionID, err)
			return
		}
		if s.notify != nil {
			s.notify(review)
		}
	}()
}

// Review 同步生成一条点评并写入会话历史
func (s *ReviewSink) Review(ctx context.Context, turn session.TurnSubmission) (Review, error) {
	transcript := strings.TrimSpace(turn.Transcript)
	if transcript == "" && turn.Snapshot == "" {
		return Review{}, ErrEmptyTurn
	}

	input := map[string]any{
		"system":  s.system,
		"history": s.historyFor(turn.SessionID),
		"turn":    []*schema.Message{buildTurnMessage(transcript, turn.Snapshot)},
	}

	resp, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return Review{}, fmt.Errorf("failed to run review chain: %w", err)
	}
	note := strings.TrimSpace(resp.Content)
	if note == "" {
		return Review{}, errors.New("review model returned empty note")
	}

	s.remember(turn.SessionID, transcript, note)
	log.Printf("[pipeline] reviewed session=%s, length=%d", turn.SessionID, len(note))

	return Review{SessionID: turn.SessionID, Note: note, At: time.Now()}, nil
}

// Forget 清除会话历史
func (s *ReviewSink) Forget(sessionID string) {
	s.mu.Lock()
	delete(s.history, sessionID)
	s.mu.Unlock()
}

// Wait 等待所有后台点评结束
func (s *ReviewSink) Wait() {
	s.wg.Wait()
}

func (s *ReviewSink) historyFor(sessionID string) []*schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*schema.Message(nil), s.history[sessionID]...)
}

func (s *ReviewSink) remember(sessionID, transcript, note string) {
	if transcript == "" {
		transcript = emptyTranscriptText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.history[sessionID], schema.UserMessage(transcript), schema.AssistantMessage(note, nil))
	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	s.history[sessionID] = msgs
}

// buildTurnMessage 文字与白板截图组成一条多模态用户消息
func buildTurnMessage(transcript, snapshot string) *schema.Message {
	if transcript == "" {
		transcript = emptyTranscriptText
	}
	if snapshot == "" {
		return schema.UserMessage(transcript)
	}
	return &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: transcript},
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:    snapshot,
					Detail: schema.ImageURLDetailLow,
				},
			},
		},
	}
}
