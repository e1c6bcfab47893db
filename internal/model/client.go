// Package model connects a call to the realtime voice backend and
// classifies the backend's protocol messages into the closed event set the
// relay acts on.
package model

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// DefaultRealtimeURL is the realtime API WebSocket endpoint.
const DefaultRealtimeURL = "wss://api.openai.com/v1/realtime"

// TransferToolName is the tool the model invokes to hand the call to a
// human operator.
const TransferToolName = "transfer_to_human"

// Config configures a realtime backend connection.
type Config struct {
	APIKey       string
	Model        string
	Voice        string
	Instructions string
	Greeting     string
	// URL overrides the realtime endpoint. Used by tests.
	URL string
}

// Conn is one call's connection to the realtime backend. The session's
// model pump owns reads; AppendAudio is the only write other components
// reach, via the relay's carrier pump.
type Conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// sessionUpdate configures the backend session right after connect.
type sessionUpdate struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

type sessionPayload struct {
	Modalities         []string       `json:"modalities"`
	Instructions       string         `json:"instructions"`
	Voice              string         `json:"voice"`
	InputAudioFormat   string         `json:"input_audio_format"`
	OutputAudioFormat  string         `json:"output_audio_format"`
	InputTranscription *transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection      *turnDetection `json:"turn_detection,omitempty"`
	Tools              []tool         `json:"tools,omitempty"`
}

type transcription struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

type tool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// responseCreate asks the backend to produce a response.
type responseCreate struct {
	Type     string          `json:"type"`
	Response responsePayload `json:"response"`
}

type responsePayload struct {
	Modalities   []string `json:"modalities"`
	Instructions string   `json:"instructions,omitempty"`
}

// audioAppend carries one chunk of caller audio to the backend.
type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// Dial connects to the realtime backend, configures the session, and asks
// the model to open with the configured greeting.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	endpoint := cfg.URL
	if endpoint == "" {
		endpoint = DefaultRealtimeURL
	}
	endpoint = fmt.Sprintf("%s?model=%s", endpoint, cfg.Model)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("model: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("model: dial failed: %w", err)
	}

	c := &Conn{ws: ws}
	if err := c.configure(cfg); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// configure sends the session configuration and the opening response
// request.
func (c *Conn) configure(cfg Config) error {
	update := sessionUpdate{
		Type: "session.update",
		Session: sessionPayload{
			Modalities:         []string{"text", "audio"},
			Instructions:       cfg.Instructions,
			Voice:              cfg.Voice,
			InputAudioFormat:   "pcm16",
			OutputAudioFormat:  "pcm16",
			InputTranscription: &transcription{Model: "whisper-1"},
			TurnDetection: &turnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMS:   300,
				SilenceDurationMS: 200,
			},
			Tools: []tool{
				{
					Type:        "function",
					Name:        TransferToolName,
					Description: "Transfer the caller to a human operator.",
					Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
				},
			},
		},
	}
	if err := c.writeJSON(update); err != nil {
		return fmt.Errorf("model: send session config: %w", err)
	}

	if cfg.Greeting == "" {
		return nil
	}
	greet := responseCreate{
		Type: "response.create",
		Response: responsePayload{
			Modalities:   []string{"text", "audio"},
			Instructions: "Start the conversation by saying: " + cfg.Greeting,
		},
	}
	if err := c.writeJSON(greet); err != nil {
		return fmt.Errorf("model: send greeting: %w", err)
	}
	return nil
}

// AppendAudio forwards one chunk of model-format PCM to the backend's input
// audio buffer.
func (c *Conn) AppendAudio(pcm []byte) error {
	msg := audioAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	}
	if err := c.writeJSON(msg); err != nil {
		return fmt.Errorf("model: append audio: %w", err)
	}
	return nil
}

// ReadMessage blocks for the next raw backend message.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
	return nil
}

func (c *Conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}
