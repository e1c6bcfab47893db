// Package twiml builds the markup documents returned to the carrier's
// webhooks: what to say, what to record, and where to open a media stream.
package twiml

import (
	"encoding/xml"
	"fmt"
)

// Response is the root TwiML element. Verbs render in field order, so
// builders append to Verbs in the order they should execute.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// Say speaks text to the caller.
type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Hangup ends the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Pause keeps the call open without output.
type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

// Dial connects the caller to another number.
type Dial struct {
	XMLName xml.Name `xml:"Dial"`
	Number  string   `xml:",chardata"`
}

// Record records the caller and reports the transcription to a callback.
type Record struct {
	XMLName            xml.Name `xml:"Record"`
	Transcribe         bool     `xml:"transcribe,attr"`
	TranscribeCallback string   `xml:"transcribeCallback,attr,omitempty"`
	MaxLength          int      `xml:"maxLength,attr,omitempty"`
	PlayBeep           bool     `xml:"playBeep,attr"`
}

// Gather collects speech or keypad input and posts it to Action.
type Gather struct {
	XMLName xml.Name `xml:"Gather"`
	Input   string   `xml:"input,attr,omitempty"`
	Action  string   `xml:"action,attr,omitempty"`
	Timeout int      `xml:"timeout,attr,omitempty"`
	Say     *Say
}

// Start opens an asynchronous action; used to attach a media stream.
type Start struct {
	XMLName xml.Name `xml:"Start"`
	Stream  *Stream
}

// Stream attaches a bidirectional media stream over WebSocket.
type Stream struct {
	XMLName xml.Name `xml:"Stream"`
	URL     string   `xml:"url,attr"`
	Track   string   `xml:"track,attr,omitempty"`
}

// Add appends a verb and returns the response for chaining.
func (r *Response) Add(verb any) *Response {
	r.Verbs = append(r.Verbs, verb)
	return r
}

// Render serializes the response as an XML document.
func (r *Response) Render() string {
	body, err := xml.MarshalIndent(r, "", "    ")
	if err != nil {
		// The verb types above always marshal; reaching this means a
		// programming error, so fail visibly but keep the call alive.
		return xml.Header + "<Response><Hangup/></Response>"
	}
	return xml.Header + string(body)
}

// MarshalXML renders every verb in insertion order.
func (r *Response) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "Response"}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, v := range r.Verbs {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// RejectCall builds the document for a call the admission gate refused:
// an optional apology, then hang up.
func RejectCall(apology string) string {
	resp := &Response{}
	if apology != "" {
		resp.Add(&Say{Text: apology})
	}
	return resp.Add(&Hangup{}).Render()
}

// ConnectStream builds the document that opens a media stream to the given
// WebSocket URL and holds the call open while it runs.
func ConnectStream(streamURL string) string {
	resp := &Response{}
	resp.Add(&Start{Stream: &Stream{URL: streamURL, Track: "both_tracks"}})
	resp.Add(&Pause{Length: 3600})
	return resp.Render()
}

// RecordMessage builds the recorded-message document: a prompt, then a
// transcribed recording posted to callbackURL.
func RecordMessage(prompt, callbackURL string, maxSeconds int) string {
	resp := &Response{}
	if prompt != "" {
		resp.Add(&Say{Text: prompt})
	}
	resp.Add(&Record{
		Transcribe:         true,
		TranscribeCallback: callbackURL,
		MaxLength:          maxSeconds,
		PlayBeep:           true,
	})
	return resp.Add(&Hangup{}).Render()
}

// ForwardCall builds the document that connects the caller to an operator.
func ForwardCall(number string) string {
	resp := &Response{}
	return resp.Add(&Dial{Number: number}).Render()
}

// GatherSpeech builds a speech-gather step: a prompt, then speech input
// posted to actionURL.
func GatherSpeech(prompt, actionURL string, timeoutSeconds int) string {
	resp := &Response{}
	resp.Add(&Gather{
		Input:   "speech",
		Action:  actionURL,
		Timeout: timeoutSeconds,
		Say:     &Say{Text: prompt},
	})
	return resp.Render()
}

// SayHangup builds a closing document: speak text, then end the call.
func SayHangup(text string) string {
	resp := &Response{}
	if text != "" {
		resp.Add(&Say{Text: text})
	}
	return resp.Add(&Hangup{}).Render()
}

var _ fmt.Stringer = (*Response)(nil)

// String implements fmt.Stringer.
func (r *Response) String() string {
	return r.Render()
}
