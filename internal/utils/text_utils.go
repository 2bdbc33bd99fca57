package utils

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// TextProcessor provides utilities for preparing message text for the classifier
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateChars cuts text to at most maxChars characters (runes). It
// reports whether anything was removed. maxChars <= 0 yields "".
func (tp *TextProcessor) TruncateChars(text string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return "", text != ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text, false
	}

	n := 0
	for i := range text {
		if n == maxChars {
			tp.logger.Debug("Text truncated",
				zap.Int("original_size", len(text)),
				zap.Int("truncated_size", i),
				zap.Int("max_chars", maxChars))
			return text[:i], true
		}
		n++
	}
	return text, false
}

// SanitizeUTF8 ensures the string contains only valid UTF-8 characters
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	sanitized := strings.ToValidUTF8(text, "")

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))

	return sanitized
}

// ProcessText sanitizes and then truncates text in one operation
func (tp *TextProcessor) ProcessText(text string, maxChars int) (string, bool) {
	return tp.TruncateChars(tp.SanitizeUTF8(text), maxChars)
}

// CollapseWhitespace folds runs of whitespace into single spaces, which
// keeps previews compact in prompts and reports
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
