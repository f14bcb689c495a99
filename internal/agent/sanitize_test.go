package agent

import "testing"

func TestSanitizeReply(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hey there", "hey there"},
		{"thinking", "<think>user wants a joke</think>\nwhy did the chicken", "why did the chicken"},
		{"final tags", "<final>sure thing</final>", "sure thing"},
		{"speaker prefix", "Chatterbox: lol same", "lol same"},
		{"bold speaker prefix", "**chatterbox**: lol same", "lol same"},
		{"other speaker kept", "Alice: said that", "Alice: said that"},
		{"echoed reply context", "(in reply to Bob: hi)\nhello Bob", "hello Bob"},
		{"duplicate blocks", "ok\n\nok\n\nbye", "ok\n\nbye"},
		{"only thinking", "<thinking>hmm</thinking>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeReply(tt.in, "Chatterbox"); got != tt.want {
				t.Fatalf("sanitizeReply(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
