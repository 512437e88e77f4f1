package ports_test

import (
	"testing"

	"github.com/care/screenshare/internal/ports"
)

func TestSupportsVocabularyCaseInsensitive(t *testing.T) {
	for _, text := range []string{"undo", "UNDO", " Redo ", "save", "Format"} {
		if !ports.Supports(text) {
			t.Errorf("Supports(%q) = false, want true", text)
		}
	}
}

func TestSupportsPrefixes(t *testing.T) {
	for _, text := range []string{"type hello world", "go to line 42", "@cline fix this"} {
		if !ports.Supports(text) {
			t.Errorf("Supports(%q) = false, want true", text)
		}
	}
}

func TestSupportsRejectsUnknownText(t *testing.T) {
	if ports.Supports("this is just chat") {
		t.Errorf("Supports(chat text) = true, want false")
	}
}
