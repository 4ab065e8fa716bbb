// Package split turns raw document text into addressable passages.
//
// Splitters are pure: the same text, strategy, and params always produce
// the same passages with the same offsets. All offsets are rune offsets
// into the original text, half-open [start, end).
package split

import (
	"fmt"

	kberrors "github.com/kbforge/kbmcp/internal/errors"
)

// Strategy names accepted by New.
const (
	StrategyPunctuation = "punctuation"
	StrategyWindow      = "window"
)

// Sliding-window defaults. Stride below window size produces overlap.
const (
	DefaultWindowSize = 256
	DefaultStride     = 170
)

// DefaultTargetLengths are the punctuation-splitter granularities.
// Splitting at several target lengths over the same text yields
// overlapping passages of different sizes, which improves fusion recall.
var DefaultTargetLengths = []int{128, 256, 512}

// Passage is a contiguous rune span of a document.
type Passage struct {
	// ID is the content-addressed identifier, assigned by ContentID.
	ID string
	// Content is the passage text.
	Content string
	// Start and End are half-open rune offsets into the source text.
	Start int
	End   int
}

// Splitter is the common capability of all splitting strategies.
// Implementations carry no state between calls.
type Splitter interface {
	// Split produces the ordered passage sequence for text.
	// Empty text yields an empty sequence.
	Split(text string) []Passage

	// Name returns the strategy name.
	Name() string
}

// Params carries strategy-specific splitting parameters.
// Zero values mean "use the strategy default".
type Params struct {
	// TargetLengths applies to the punctuation strategy.
	TargetLengths []int
	// WindowSize and Stride apply to the window strategy.
	WindowSize int
	Stride     int
}

// New constructs the splitter for the named strategy. Zero-valued
// params take the strategy defaults; explicitly invalid values are
// rejected by the strategy constructor.
func New(strategy string, params Params) (Splitter, error) {
	switch strategy {
	case StrategyPunctuation:
		return NewPunctuationSplitter(params.TargetLengths)
	case StrategyWindow:
		window, stride := params.WindowSize, params.Stride
		if window == 0 {
			window = DefaultWindowSize
		}
		if stride == 0 {
			stride = DefaultStride
		}
		return NewWindowSplitter(window, stride)
	default:
		return nil, kberrors.New(kberrors.ErrCodeUnknownStrategy,
			fmt.Sprintf("unknown split strategy: %q", strategy), nil).
			WithSuggestion(fmt.Sprintf("use %q or %q", StrategyPunctuation, StrategyWindow))
	}
}
