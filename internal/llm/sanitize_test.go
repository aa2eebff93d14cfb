package llm

import "testing"

func TestStripThinkingTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no tags", "Employees accrue 15 days.", "Employees accrue 15 days."},
		{"leading block", "<think>let me check</think>\nAnswer (abc123)", "Answer (abc123)"},
		{"two blocks", "<think>a</think>One <think>b</think>Two", "One Two"},
		{"unterminated", "Answer first <think>rambling", "Answer first"},
		{"only thinking", "<think>nothing useful</think>", ""},
		{"whitespace", "  padded  ", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripThinkingTags(tt.in); got != tt.want {
				t.Errorf("StripThinkingTags(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
