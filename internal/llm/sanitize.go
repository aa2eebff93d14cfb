package llm

import "strings"

// StripThinkingTags removes <think>...</think> blocks from model output.
// Some models (e.g. qwen3, deepseek-r1) wrap their reasoning in these tags.
// An unterminated block drops everything after its opening tag.
func StripThinkingTags(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "</think>")
		if end == -1 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
	return strings.TrimSpace(s)
}
