package workflow

import (
	"path/filepath"
	"strings"

	"anilink/internal/queue"
)

// deriveStageLabel turns a processing status into the progress label shown
// to operators, e.g. "resolving" becomes "Resolving".
func deriveStageLabel(status queue.Status) string {
	text := strings.ReplaceAll(strings.TrimSpace(string(status)), "_", " ")
	if text == "" {
		return ""
	}
	words := strings.Fields(text)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// displayName prefers the resolved title and falls back to the source file
// name for items that fail before resolution.
func displayName(item *queue.Item) string {
	if item == nil {
		return ""
	}
	if title := strings.TrimSpace(item.DisplayTitle); title != "" {
		return title
	}
	return filepath.Base(item.SourcePath)
}
