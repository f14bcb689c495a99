package agent

import (
	"log/slog"
	"regexp"
	"strings"
)

// sanitizeReply cleans model output before it is paced and sent:
//
//  1. thinking/reasoning blocks (<think>, <thinking>, <thought>)
//  2. <final> wrapper tags (content kept)
//  3. a leading "Name:" speaker prefix copied from the transcript format
//  4. an echoed "(in reply to ...)" line
//  5. consecutive duplicate paragraphs
func sanitizeReply(content, persona string) string {
	if content == "" {
		return content
	}
	original := content

	content = stripThinkingTags(content)
	content = stripFinalTags(content)
	content = stripSpeakerPrefix(content, persona)
	content = stripEchoedReplyContext(content)
	content = collapseConsecutiveDuplicateBlocks(content)
	content = strings.TrimSpace(content)

	if content != original {
		slog.Debug("sanitized reply", "original_len", len(original), "cleaned_len", len(content))
	}
	return content
}

// Go regexp has no backreferences, so one pattern per tag.
var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
}

func stripThinkingTags(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return content
	}
	for _, pat := range thinkingTagPatterns {
		content = pat.ReplaceAllString(content, "")
	}
	return strings.TrimSpace(content)
}

var finalTagPattern = regexp.MustCompile(`(?i)<\s*/?\s*final\s*>`)

func stripFinalTags(content string) string {
	if !strings.Contains(strings.ToLower(content), "final") {
		return content
	}
	return finalTagPattern.ReplaceAllString(content, "")
}

// stripSpeakerPrefix drops "Persona:" (optionally bolded) at the very start.
func stripSpeakerPrefix(content, persona string) string {
	if persona == "" {
		return content
	}
	trimmed := strings.TrimLeft(content, " \t\r\n")
	for _, prefix := range []string{persona + ":", "**" + persona + "**:", "**" + persona + ":**"} {
		if len(trimmed) >= len(prefix) && strings.EqualFold(trimmed[:len(prefix)], prefix) {
			return strings.TrimLeft(trimmed[len(prefix):], " \t")
		}
	}
	return content
}

func stripEchoedReplyContext(content string) string {
	if !strings.Contains(content, "(in reply to ") {
		return content
	}
	lines := strings.Split(content, "\n")
	result := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "(in reply to ") && strings.HasSuffix(trimmed, ")") {
			continue
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

func collapseConsecutiveDuplicateBlocks(content string) string {
	blocks := strings.Split(content, "\n\n")
	if len(blocks) <= 1 {
		return content
	}

	var result []string
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if len(result) > 0 && trimmed == strings.TrimSpace(result[len(result)-1]) {
			continue
		}
		result = append(result, block)
	}
	return strings.Join(result, "\n\n")
}
