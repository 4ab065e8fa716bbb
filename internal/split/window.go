package split

import (
	"fmt"

	kberrors "github.com/kbforge/kbmcp/internal/errors"
)

// WindowSplitter emits fixed-size windows advanced by a stride.
// A stride below the window size produces overlapping passages.
type WindowSplitter struct {
	windowSize int
	stride     int
}

// NewWindowSplitter validates parameters and builds the splitter.
// Non-positive values are rejected. A stride at or above the window
// size is allowed and simply disables overlap.
func NewWindowSplitter(windowSize, stride int) (*WindowSplitter, error) {
	if windowSize <= 0 {
		return nil, kberrors.New(kberrors.ErrCodeInvalidParameter,
			fmt.Sprintf("window size must be positive, got %d", windowSize), nil)
	}
	if stride <= 0 {
		return nil, kberrors.New(kberrors.ErrCodeInvalidParameter,
			fmt.Sprintf("stride must be positive, got %d", stride), nil)
	}
	return &WindowSplitter{windowSize: windowSize, stride: stride}, nil
}

var _ Splitter = (*WindowSplitter)(nil)

// Name returns the strategy name.
func (s *WindowSplitter) Name() string { return StrategyWindow }

// Split emits windows [start, start+window) for start = 0, stride, ...
// while the window end stays inside the text, then one final passage
// covering the tail so the end of the document is never dropped.
func (s *WindowSplitter) Split(text string) []Passage {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	if len(runes) <= s.windowSize {
		return []Passage{newPassage(runes, 0, len(runes))}
	}

	var passages []Passage
	start := 0
	for end := s.windowSize; end < len(runes); end = start + s.windowSize {
		passages = append(passages, newPassage(runes, start, end))
		start += s.stride
	}

	// Tail passage, possibly overlapping the previous window. A stride
	// larger than the window can land start exactly at the end of the
	// text; there is nothing left to cover in that case.
	if start < len(runes) {
		passages = append(passages, newPassage(runes, start, len(runes)))
	}

	return passages
}
