package relay

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Carrier media-stream envelope. One JSON message per frame or control
// event, discriminated by Event.
type Envelope struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *StartMessage `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	Stop      *StopMessage  `json:"stop,omitempty"`
}

// Carrier envelope discriminators.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
)

// StartMessage announces the opening of a media stream.
type StartMessage struct {
	StreamSID   string      `json:"streamSid"`
	AccountSID  string      `json:"accountSid"`
	CallSID     string      `json:"callSid"`
	Tracks      []string    `json:"tracks"`
	MediaFormat MediaFormat `json:"mediaFormat"`
}

// MediaFormat describes the stream's audio encoding.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one base64-encoded narrowband audio frame.
type MediaPayload struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

// Audio returns the decoded audio bytes, or nil when the payload is
// missing or not valid base64.
func (m *MediaPayload) Audio() []byte {
	if m == nil || m.Payload == "" {
		return nil
	}
	audio, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return nil
	}
	return audio
}

// StopMessage announces the end of a media stream.
type StopMessage struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

// Upgrader accepts carrier WebSocket connections. The carrier does not
// send an Origin header, so the origin check admits everything.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// CarrierConn wraps the carrier's media-stream WebSocket. Reads belong to
// the carrier pump; writes are serialized so the model pump can forward
// audio while control frames go out.
type CarrierConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// UpgradeCarrier upgrades an inbound HTTP request to a carrier media
// stream connection.
func UpgradeCarrier(w http.ResponseWriter, r *http.Request) (*CarrierConn, error) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &CarrierConn{ws: ws}, nil
}

// NewCarrierConn wraps an established WebSocket connection.
func NewCarrierConn(ws *websocket.Conn) *CarrierConn {
	return &CarrierConn{ws: ws}
}

// ReadEnvelope blocks for the next carrier envelope. Messages that do not
// parse return a nil envelope and nil error; the pump skips them.
func (c *CarrierConn) ReadEnvelope() (*Envelope, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil
	}
	return &env, nil
}

// WriteMedia sends one narrowband audio frame to the carrier.
func (c *CarrierConn) WriteMedia(streamSID string, audio []byte) error {
	msg := map[string]any{
		"event":     EventMedia,
		"streamSid": streamSID,
		"media": map[string]string{
			"payload": base64.StdEncoding.EncodeToString(audio),
		},
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

// Close shuts the connection down. Safe to call more than once.
func (c *CarrierConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
	return nil
}

// IsExpectedClose reports whether err is a normal end-of-stream close.
func IsExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
