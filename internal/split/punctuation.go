package split

import (
	"fmt"

	kberrors "github.com/kbforge/kbmcp/internal/errors"
)

// PunctuationSplitter accumulates sentences up to a target length.
//
// Cut candidates are terminal punctuation marks ('.' or '。'), each
// optionally swallowing one following newline. A passage is emitted
// when the accumulated span exceeds the target length or the candidate
// is the last rune of the text. Any remainder after the final mark is
// emitted as a trailing passage. Running every configured target length
// over the same text produces multi-granularity overlapping passages.
type PunctuationSplitter struct {
	targetLengths []int
}

// NewPunctuationSplitter validates target lengths and builds the splitter.
// Nil or empty lengths fall back to DefaultTargetLengths.
func NewPunctuationSplitter(targetLengths []int) (*PunctuationSplitter, error) {
	if len(targetLengths) == 0 {
		targetLengths = DefaultTargetLengths
	}
	for _, l := range targetLengths {
		if l <= 0 {
			return nil, kberrors.New(kberrors.ErrCodeInvalidParameter,
				fmt.Sprintf("target length must be positive, got %d", l), nil)
		}
	}
	return &PunctuationSplitter{targetLengths: targetLengths}, nil
}

var _ Splitter = (*PunctuationSplitter)(nil)

// Name returns the strategy name.
func (s *PunctuationSplitter) Name() string { return StrategyPunctuation }

// Split emits the concatenation of one pass per target length.
func (s *PunctuationSplitter) Split(text string) []Passage {
	runes := []rune(text)
	var passages []Passage
	for _, length := range s.targetLengths {
		passages = append(passages, splitAtLength(runes, length)...)
	}
	return passages
}

// splitAtLength is a single accumulate-to-length pass over the text.
func splitAtLength(runes []rune, targetLength int) []Passage {
	var passages []Passage
	start := 0

	for _, end := range cutPoints(runes) {
		if end-start > targetLength || end == len(runes) {
			passages = append(passages, newPassage(runes, start, end))
			start = end
		}
	}

	// Trailing text after the last punctuation mark is never dropped.
	if start < len(runes) {
		passages = append(passages, newPassage(runes, start, len(runes)))
	}

	return passages
}

// cutPoints returns the end offset of every terminal punctuation mark,
// including one newline directly after the mark when present.
func cutPoints(runes []rune) []int {
	var points []int
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '。' {
			continue
		}
		end := i + 1
		if end < len(runes) && runes[end] == '\n' {
			end++
			i++
		}
		points = append(points, end)
	}
	return points
}

func newPassage(runes []rune, start, end int) Passage {
	content := string(runes[start:end])
	return Passage{
		ID:      ContentID(content),
		Content: content,
		Start:   start,
		End:     end,
	}
}
