package model

import (
	"encoding/base64"
	"testing"
)

func TestClassify(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "audio delta",
			raw:  `{"type": "response.audio.delta", "delta": "` + audio + `"}`,
			want: Event{Kind: KindAudioChunk, Audio: []byte{1, 2, 3, 4}},
		},
		{
			name: "text delta",
			raw:  `{"type": "response.text.delta", "delta": "Hel"}`,
			want: Event{Kind: KindTranscriptFragment, Role: RoleBot, Text: "Hel"},
		},
		{
			name: "text done",
			raw:  `{"type": "response.text.done"}`,
			want: Event{Kind: KindTranscriptFragment, Role: RoleBot, Final: true},
		},
		{
			name: "caller transcription completed",
			raw:  `{"type": "conversation.item.input_audio_transcription.completed", "transcript": "billing issue"}`,
			want: Event{Kind: KindTranscriptFragment, Role: RoleCaller, Text: "billing issue", Final: true},
		},
		{
			name: "tool invocation",
			raw:  `{"type": "response.function_call_arguments.done", "name": "transfer_to_human", "arguments": "{}"}`,
			want: Event{Kind: KindToolInvocation, Tool: "transfer_to_human"},
		},
		{
			name: "error with code",
			raw:  `{"type": "error", "error": {"code": "session_expired", "message": "gone"}}`,
			want: Event{Kind: KindError, Code: "session_expired"},
		},
		{
			name: "error without code",
			raw:  `{"type": "error"}`,
			want: Event{Kind: KindError, Code: "unknown"},
		},
		{
			name: "unknown discriminator",
			raw:  `{"type": "response.output_item.added"}`,
			want: Event{Kind: KindUnrecognized},
		},
		{
			name: "not json",
			raw:  `garbage`,
			want: Event{Kind: KindUnrecognized},
		},
		{
			name: "audio delta with bad base64",
			raw:  `{"type": "response.audio.delta", "delta": "!!!"}`,
			want: Event{Kind: KindUnrecognized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify([]byte(tt.raw))
			if got.Kind != tt.want.Kind {
				t.Fatalf("kind = %v, want %v", got.Kind, tt.want.Kind)
			}
			if string(got.Audio) != string(tt.want.Audio) {
				t.Errorf("audio = %v, want %v", got.Audio, tt.want.Audio)
			}
			if got.Role != tt.want.Role || got.Text != tt.want.Text || got.Final != tt.want.Final {
				t.Errorf("fragment = (%q,%q,%v), want (%q,%q,%v)",
					got.Role, got.Text, got.Final, tt.want.Role, tt.want.Text, tt.want.Final)
			}
			if got.Tool != tt.want.Tool {
				t.Errorf("tool = %q, want %q", got.Tool, tt.want.Tool)
			}
			if got.Code != tt.want.Code {
				t.Errorf("code = %q, want %q", got.Code, tt.want.Code)
			}
		})
	}
}
