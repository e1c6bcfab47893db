package twiml

import (
	"strings"
	"testing"
)

func TestConnectStream(t *testing.T) {
	doc := ConnectStream("wss://desk.example.com/media-stream/CA1")
	for _, want := range []string{
		"<Start>",
		`<Stream url="wss://desk.example.com/media-stream/CA1" track="both_tracks">`,
		`<Pause length="3600">`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
}

func TestRejectCall(t *testing.T) {
	doc := RejectCall("We cannot take your call right now.")
	if !strings.Contains(doc, "We cannot take your call right now.") {
		t.Errorf("apology missing:\n%s", doc)
	}
	if !strings.Contains(doc, "<Hangup>") {
		t.Errorf("hangup missing:\n%s", doc)
	}
	sayIdx := strings.Index(doc, "<Say>")
	hangupIdx := strings.Index(doc, "<Hangup>")
	if sayIdx > hangupIdx {
		t.Errorf("verbs out of order:\n%s", doc)
	}
}

func TestRejectCall_NoApology(t *testing.T) {
	doc := RejectCall("")
	if strings.Contains(doc, "<Say>") {
		t.Errorf("unexpected Say verb:\n%s", doc)
	}
}

func TestRecordMessage(t *testing.T) {
	doc := RecordMessage("Leave a message.", "https://desk.example.com/transcription", 120)
	for _, want := range []string{
		`transcribe="true"`,
		`transcribeCallback="https://desk.example.com/transcription"`,
		`maxLength="120"`,
		`playBeep="true"`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
}

func TestForwardCall(t *testing.T) {
	doc := ForwardCall("+447873665370")
	if !strings.Contains(doc, "<Dial>+447873665370</Dial>") {
		t.Errorf("dial missing:\n%s", doc)
	}
}

func TestGatherSpeech(t *testing.T) {
	doc := GatherSpeech("What is your name?", "/step", 5)
	for _, want := range []string{
		`input="speech"`,
		`action="/step"`,
		`timeout="5"`,
		"What is your name?",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
}

func TestRender_EscapesText(t *testing.T) {
	doc := SayHangup(`Press "1" & hold <now>`)
	if strings.Contains(doc, "<now>") {
		t.Errorf("text not escaped:\n%s", doc)
	}
	if !strings.Contains(doc, "&amp;") {
		t.Errorf("ampersand not escaped:\n%s", doc)
	}
}
