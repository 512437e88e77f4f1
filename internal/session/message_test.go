package session

import "testing"

func alwaysSupports(string) bool { return true }
func neverSupports(string) bool  { return false }

func TestParseBinaryMouseEvent(t *testing.T) {
	data := []byte(`{"type":"mouse-event","x":400,"y":300,"eventType":"down","screenWidth":800,"screenHeight":600}`)
	msg := ParseBinary(data, neverSupports)
	if msg.Kind != KindMouseEvent {
		t.Fatalf("Kind = %v, want KindMouseEvent", msg.Kind)
	}
	if msg.Mouse.X != 400 || msg.Mouse.Y != 300 || msg.Mouse.EventType != "down" {
		t.Errorf("Mouse = %+v", msg.Mouse)
	}
}

func TestParseBinaryQualityUpdate(t *testing.T) {
	data := []byte(`{"type":"quality-update","width":1280,"fps":30}`)
	msg := ParseBinary(data, neverSupports)
	if msg.Kind != KindQualityUpdate {
		t.Fatalf("Kind = %v, want KindQualityUpdate", msg.Kind)
	}
	if msg.Quality.Width == nil || *msg.Quality.Width != 1280 {
		t.Errorf("Quality.Width = %v, want 1280", msg.Quality.Width)
	}
	if msg.Quality.JPEGQuality != nil {
		t.Errorf("Quality.JPEGQuality = %v, want nil (not provided)", msg.Quality.JPEGQuality)
	}
}

func TestParseBinaryUnknownJSONTypeFallsThroughToUploadOrCommand(t *testing.T) {
	data := []byte(`{"type":"some-future-tag","foo":"bar"}`)

	uploadMsg := ParseBinary(data, neverSupports)
	if uploadMsg.Kind != KindUpload {
		t.Fatalf("Kind = %v, want KindUpload for unrecognized type with no command match", uploadMsg.Kind)
	}

	cmdMsg := ParseBinary(data, alwaysSupports)
	if cmdMsg.Kind != KindCommand {
		t.Fatalf("Kind = %v, want KindCommand when supports() matches the raw text", cmdMsg.Kind)
	}
}

func TestParseBinaryNonJSONCommandVsUpload(t *testing.T) {
	msg := ParseBinary([]byte("undo"), func(s string) bool { return s == "undo" })
	if msg.Kind != KindCommand || msg.Text != "undo" {
		t.Fatalf("got %+v, want KindCommand(\"undo\")", msg)
	}

	msg2 := ParseBinary([]byte{0x00, 0x01, 0x02}, neverSupports)
	if msg2.Kind != KindUpload {
		t.Fatalf("Kind = %v, want KindUpload for opaque binary data", msg2.Kind)
	}
}

func TestParseTextQualityUpdateVsChat(t *testing.T) {
	q := ParseText([]byte(`{"type":"quality-update","jpegQuality":75}`))
	if q.Kind != KindQualityUpdate {
		t.Fatalf("Kind = %v, want KindQualityUpdate", q.Kind)
	}

	chat := ParseText([]byte("how do I fix this null pointer?"))
	if chat.Kind != KindChat || chat.Text == "" {
		t.Fatalf("got %+v, want KindChat with text", chat)
	}
}
