package split

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPunctuationSplitter_EmptyTextYieldsNoPassages(t *testing.T) {
	s, err := NewPunctuationSplitter(nil)
	require.NoError(t, err)

	assert.Empty(t, s.Split(""))
}

func TestPunctuationSplitter_EmitsTrailingRemainder(t *testing.T) {
	// Given: text whose tail has no terminal punctuation
	s, err := NewPunctuationSplitter([]int{10})
	require.NoError(t, err)
	text := "First sentence here. trailing words without a period"

	// When: splitting
	passages := s.Split(text)

	// Then: the final passage ends at the end of the text
	require.NotEmpty(t, passages)
	last := passages[len(passages)-1]
	assert.Equal(t, len([]rune(text)), last.End)
	assert.True(t, strings.HasSuffix(last.Content, "period"))
}

func TestPunctuationSplitter_CoverageHasNoGaps(t *testing.T) {
	// Given: mixed ASCII and CJK text with several sentence boundaries
	text := "Go is expressive. Concurrency is a first-class citizen.\n" +
		"检索系统将文档切分为段落。每个段落可独立检索。\n" +
		"Short. Another sentence that runs a little longer than the rest. End"

	for _, length := range []int{8, 32, 128} {
		s, err := NewPunctuationSplitter([]int{length})
		require.NoError(t, err)

		passages := s.Split(text)
		require.NotEmpty(t, passages)

		// Then: sorted passage ranges tile [0, len(text)) exactly
		sort.Slice(passages, func(i, j int) bool { return passages[i].Start < passages[j].Start })
		assert.Equal(t, 0, passages[0].Start)
		for i := 1; i < len(passages); i++ {
			assert.Equal(t, passages[i-1].End, passages[i].Start,
				"gap between passages at target length %d", length)
		}
		assert.Equal(t, len([]rune(text)), passages[len(passages)-1].End)
	}
}

func TestPunctuationSplitter_OffsetsAreRuneBased(t *testing.T) {
	// Given: multibyte text where byte and rune offsets diverge
	s, err := NewPunctuationSplitter([]int{4})
	require.NoError(t, err)
	text := "你好世界。再见。"

	passages := s.Split(text)
	require.NotEmpty(t, passages)

	runes := []rune(text)
	for _, p := range passages {
		assert.Equal(t, string(runes[p.Start:p.End]), p.Content)
	}
}

func TestPunctuationSplitter_SwallowsNewlineAfterPeriod(t *testing.T) {
	// Given: a period immediately followed by a newline
	s, err := NewPunctuationSplitter([]int{1})
	require.NoError(t, err)

	passages := s.Split("One.\nTwo.")

	// Then: the newline belongs to the first passage
	require.Len(t, passages, 2)
	assert.Equal(t, "One.\n", passages[0].Content)
	assert.Equal(t, "Two.", passages[1].Content)
}

func TestPunctuationSplitter_MultiGranularityOverlap(t *testing.T) {
	// Given: default lengths 128/256/512 over text shorter than all of them
	s, err := NewPunctuationSplitter(nil)
	require.NoError(t, err)
	text := "Tiny. Document."

	passages := s.Split(text)

	// Then: each granularity contributes one full-coverage pass
	assert.Len(t, passages, 3)
	for _, p := range passages {
		assert.Equal(t, 0, p.Start)
		assert.Equal(t, len([]rune(text)), p.End)
	}
}

func TestPunctuationSplitter_AccumulatesToTargetLength(t *testing.T) {
	// Given: four short sentences and a target that fits two of them
	s, err := NewPunctuationSplitter([]int{12})
	require.NoError(t, err)
	text := "Aaaa. Bbbb. Cccc. Dddd."

	passages := s.Split(text)

	// Then: sentences merge until the span exceeds the target
	require.Len(t, passages, 2)
	assert.Equal(t, "Aaaa. Bbbb. Cccc.", passages[0].Content)
	assert.Equal(t, " Dddd.", passages[1].Content)
}

func TestPunctuationSplitter_RejectsNonPositiveTargetLength(t *testing.T) {
	_, err := NewPunctuationSplitter([]int{128, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_401")
}

func TestPunctuationSplitter_Deterministic(t *testing.T) {
	s, err := NewPunctuationSplitter(nil)
	require.NoError(t, err)
	text := "Deterministic output. Same offsets. Same ids."

	first := s.Split(text)
	second := s.Split(text)

	assert.Equal(t, first, second)
}
