package rawdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegion(id string, start, length, reserved uint64) *Region {
	return &Region{meta: RegionMetadata{ID: id, Start: start, Len: length, Reserved: reserved}}
}

// Ties between equal-size holes are broken by the lowest start.
func Test_Layout_FindSmallestAdequateHole_Prefers_Smaller_Then_Lowest_Start(t *testing.T) {
	t.Parallel()

	l := newLayout()
	l.entries = []layoutEntry{
		{start: 0, length: PageSize},
		{start: PageSize, length: 3 * PageSize},
		{start: 4 * PageSize, length: 2 * PageSize},
		{start: 6 * PageSize, length: 2 * PageSize},
	}

	start, ok := l.findSmallestAdequateHole(2 * PageSize)
	require.True(t, ok)
	assert.Equal(t, uint64(4*PageSize), start, "the two 2-page holes tie; lowest start wins")
}

func Test_Layout_FindSmallestAdequateHole_Returns_False_When_None_Fit(t *testing.T) {
	t.Parallel()

	l := newLayout()
	l.entries = []layoutEntry{{start: 0, length: PageSize}}

	_, ok := l.findSmallestAdequateHole(2 * PageSize)
	assert.False(t, ok)
}

// Adjacent holes must be coalesced into one on removal.
func Test_Layout_RemoveRegion_Coalesces_Adjacent_Holes(t *testing.T) {
	t.Parallel()

	l := newLayout()
	r1 := newTestRegion("r1", 0, 0, PageSize)
	r2 := newTestRegion("r2", PageSize, 0, PageSize)
	r3 := newTestRegion("r3", 2*PageSize, 0, PageSize)
	l.entries = []layoutEntry{
		{start: 0, length: PageSize, region: r1},
		{start: PageSize, length: PageSize, region: r2},
		{start: 2 * PageSize, length: PageSize, region: r3},
	}

	require.NoError(t, l.removeRegion(r1))
	require.NoError(t, l.removeRegion(r3))

	// r2 still separates the two new single-page holes; nothing to merge yet.
	require.Len(t, l.entries, 3)

	require.NoError(t, l.removeRegion(r2))

	require.Len(t, l.entries, 1, "all three extents must coalesce into a single hole")
	assert.Equal(t, uint64(0), l.entries[0].start)
	assert.Equal(t, uint64(3*PageSize), l.entries[0].length)
}

func Test_Layout_IsLast_True_Only_For_Highest_Start_Region(t *testing.T) {
	t.Parallel()

	l := newLayout()
	r1 := newTestRegion("r1", 0, 0, PageSize)
	r2 := newTestRegion("r2", PageSize, 0, PageSize)
	l.entries = []layoutEntry{
		{start: 0, length: PageSize, region: r1},
		{start: PageSize, length: PageSize, region: r2},
	}

	assert.False(t, l.isLast(r1))
	assert.True(t, l.isLast(r2))
}

func Test_Layout_IsLast_False_When_Hole_Follows_Region(t *testing.T) {
	t.Parallel()

	l := newLayout()
	r1 := newTestRegion("r1", 0, 0, PageSize)
	l.entries = []layoutEntry{
		{start: 0, length: PageSize, region: r1},
		{start: PageSize, length: PageSize},
	}

	assert.False(t, l.isLast(r1))
}

func Test_Layout_RebuildFromRegions_Inserts_Holes_Between_Gaps(t *testing.T) {
	t.Parallel()

	l := newLayout()
	r1 := newTestRegion("r1", 0, 0, PageSize)
	r2 := newTestRegion("r2", 3*PageSize, 0, PageSize)
	l.rebuildFromRegions([]*Region{r2, r1})

	require.Len(t, l.entries, 3)
	assert.Equal(t, layoutEntry{start: 0, length: PageSize, region: r1}, l.entries[0])
	assert.Equal(t, uint64(PageSize), l.entries[1].start)
	assert.Equal(t, uint64(2*PageSize), l.entries[1].length)
	assert.True(t, l.entries[1].isHole())
	assert.Equal(t, layoutEntry{start: 3 * PageSize, length: PageSize, region: r2}, l.entries[2])
}

func Test_Layout_RemoveOrCompressHole_Shrinks_Hole_Forward(t *testing.T) {
	t.Parallel()

	l := newLayout()
	l.entries = []layoutEntry{{start: 0, length: 3 * PageSize}}

	l.removeOrCompressHole(0, PageSize)

	require.Len(t, l.entries, 1)
	assert.Equal(t, uint64(PageSize), l.entries[0].start)
	assert.Equal(t, uint64(2*PageSize), l.entries[0].length)
}

func Test_Layout_RemoveOrCompressHole_Drops_Hole_On_Exact_Match(t *testing.T) {
	t.Parallel()

	l := newLayout()
	l.entries = []layoutEntry{{start: 0, length: PageSize}}

	l.removeOrCompressHole(0, PageSize)

	assert.Empty(t, l.entries)
}

func Test_Layout_RemoveOrCompressHole_Panics_On_Undersized_Hole(t *testing.T) {
	t.Parallel()

	l := newLayout()
	l.entries = []layoutEntry{{start: 0, length: PageSize}}

	assert.Panics(t, func() { l.removeOrCompressHole(0, 2*PageSize) })
}

func Test_Layout_Length_Returns_End_Of_Last_Occupant(t *testing.T) {
	t.Parallel()

	l := newLayout()
	assert.Equal(t, uint64(0), l.length())

	l.entries = []layoutEntry{{start: 0, length: PageSize}, {start: PageSize, length: 2 * PageSize}}
	assert.Equal(t, uint64(3*PageSize), l.length())
}
