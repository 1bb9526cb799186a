package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeEventKinds(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Inbound
	}{
		{
			name: "transcription delta",
			raw:  `{"type":"conversation.item.input_audio_transcription.delta","item_id":"item_1","delta":"Hel"}`,
			want: TranscriptionDelta{ItemID: "item_1", Delta: "Hel"},
		},
		{
			name: "transcription completed",
			raw:  `{"type":"conversation.item.input_audio_transcription.completed","item_id":"item_1","transcript":"Hello world"}`,
			want: TranscriptionCompleted{ItemID: "item_1", Transcript: "Hello world"},
		},
		{
			name: "audio transcript delta",
			raw:  `{"type":"response.audio_transcript.delta","response_id":"resp_1","delta":"Sure"}`,
			want: ReplyDelta{Type: "response.audio_transcript.delta", ResponseID: "resp_1", Delta: "Sure"},
		},
		{
			name: "output text done",
			raw:  `{"type":"response.output_text.done","response_id":"resp_1","text":"Sure thing"}`,
			want: ReplyDone{Type: "response.output_text.done", ResponseID: "resp_1", Text: "Sure thing"},
		},
		{
			name: "speech started",
			raw:  `{"type":"input_audio_buffer.speech_started","audio_start_ms":120,"item_id":"item_2"}`,
			want: SpeechStarted{AudioStartMS: 120, ItemID: "item_2"},
		},
		{
			name: "speech stopped",
			raw:  `{"type":"input_audio_buffer.speech_stopped","audio_end_ms":900,"item_id":"item_2"}`,
			want: SpeechStopped{AudioEndMS: 900, ItemID: "item_2"},
		},
		{
			name: "error",
			raw:  `{"type":"error","error":{"type":"invalid_request_error","code":"bad","message":"nope"}}`,
			want: ErrorEvent{Error: ErrorDetail{Type: "invalid_request_error", Code: "bad", Message: "nope"}},
		},
		{
			name: "unknown",
			raw:  `{"type":"rate_limits.updated"}`,
			want: Unknown{Type: "rate_limits.updated"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.raw))
			if err != nil {
				t.Fatalf("Decode err: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Decode = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeTranscriptionFailedKeepsRawPayload(t *testing.T) {
	raw := `{"type":"conversation.item.input_audio_transcription.failed","item_id":"item_3","error":{"message":"audio too short"}}`

	got, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}
	failed, ok := got.(TranscriptionFailed)
	if !ok {
		t.Fatalf("expected TranscriptionFailed, got %T", got)
	}
	if failed.Error.String() != "audio too short" {
		t.Fatalf("unexpected error detail: %q", failed.Error.String())
	}
	if string(failed.Raw) != raw {
		t.Fatalf("raw payload not preserved: %s", failed.Raw)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{"delta":"x"}`, `[]`} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("Decode(%q) err = %v, want ErrMalformedEvent", raw, err)
		}
	}
}

func TestManualSessionUpdateSerializesNullTurnDetection(t *testing.T) {
	evt := NewSessionUpdate(SessionConfig{
		InputAudioTranscription: &InputAudioTranscription{Model: "gpt-4o-transcribe", Language: "en"},
		Modalities:              []string{"text", "audio"},
		Voice:                   "ash",
	})

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("Marshal err: %v", err)
	}
	if !strings.Contains(string(data), `"turn_detection":null`) {
		t.Fatalf("expected explicit null turn_detection, got %s", data)
	}
	if !strings.Contains(string(data), `"type":"session.update"`) {
		t.Fatalf("missing event type: %s", data)
	}
}

func TestNewUserMessage(t *testing.T) {
	if _, ok := NewUserMessage("", ""); ok {
		t.Fatal("expected no message for empty text and image")
	}

	evt, ok := NewUserMessage("", "data:image/jpeg;base64,AAAA")
	if !ok {
		t.Fatal("expected image-only message to be allowed")
	}
	if len(evt.Item.Content) != 1 || evt.Item.Content[0].Type != ContentInputImage {
		t.Fatalf("unexpected content: %#v", evt.Item.Content)
	}

	evt, ok = NewUserMessage("what is 2+2", "data:image/jpeg;base64,AAAA")
	if !ok || len(evt.Item.Content) != 2 {
		t.Fatalf("expected text and image parts, got %#v", evt.Item.Content)
	}
	if evt.Item.Content[0].Text != "what is 2+2" {
		t.Fatalf("text part should come first: %#v", evt.Item.Content)
	}
	if evt.Type != TypeConversationItemCreate || evt.Item.Role != "user" {
		t.Fatalf("unexpected envelope: %#v", evt)
	}
}
