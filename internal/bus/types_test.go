package bus

import "testing"

func TestConversationKey(t *testing.T) {
	if got := ConversationKey("g1", "c1"); got != "g1:c1" {
		t.Fatalf("expected g1:c1, got: %s", got)
	}
	if got := ConversationKey("", "c1"); got != "dm:c1" {
		t.Fatalf("expected dm:c1, got: %s", got)
	}
}

func TestMediaAttachmentIsImage(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"image/png", true},
		{"image/jpeg", true},
		{"video/mp4", false},
		{"", false},
		{"image/", false},
	}
	for _, tt := range tests {
		if got := (MediaAttachment{ContentType: tt.ct}).IsImage(); got != tt.want {
			t.Errorf("IsImage(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}
