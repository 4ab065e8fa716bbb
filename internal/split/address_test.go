package split

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentID_DeterministicAcrossCalls(t *testing.T) {
	// Given: the same content
	content := "retrieval-augmented generation 段落"

	// Then: the id never changes
	assert.Equal(t, ContentID(content), ContentID(content))
}

func TestContentID_KnownDigest(t *testing.T) {
	// Fixed digest so the id survives process restarts and reimplementation.
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		ContentID("hello"))
}

func TestContentID_DistinctContentDistinctIDs(t *testing.T) {
	assert.NotEqual(t, ContentID("passage a"), ContentID("passage b"))
}

func TestContentID_LowercaseHexOfFixedLength(t *testing.T) {
	id := ContentID("")
	assert.Len(t, id, 64)
	for _, c := range id {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
	}
}

func TestSplitters_AssignContentAddressedIDs(t *testing.T) {
	s, err := NewWindowSplitter(8, 4)
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range s.Split("identical windows get identical ids whenever content repeats") {
		assert.Equal(t, ContentID(p.Content), p.ID)
	}
}
