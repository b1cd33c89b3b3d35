package rawdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EncodeDecodeSlotRecord_RoundTrips(t *testing.T) {
	t.Parallel()

	rec := slotRecord{start: 4096, len: 123, reserved: 8192, id: "my-region"}
	buf, err := encodeSlotRecord(rec)
	require.NoError(t, err)
	require.Len(t, buf, slotRecordSize)

	got, ok, err := decodeSlotRecord(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func Test_DecodeSlotRecord_AllZero_Is_Tombstone(t *testing.T) {
	t.Parallel()

	buf := make([]byte, slotRecordSize)
	rec, ok, err := decodeSlotRecord(buf)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, slotRecord{}, rec)
}

func Test_DecodeSlotRecord_Rejects_Wrong_Size(t *testing.T) {
	t.Parallel()

	_, _, err := decodeSlotRecord(make([]byte, 10))
	require.ErrorIs(t, err, ErrMetadataMalformed)
}

func Test_DecodeSlotRecord_Rejects_Bad_ID_Length(t *testing.T) {
	t.Parallel()

	buf := make([]byte, slotRecordSize)
	buf[31] = 0xff // id_len huge, first 32 bytes not all-zero so not a tombstone
	_, _, err := decodeSlotRecord(buf)
	require.ErrorIs(t, err, ErrMetadataMalformed)
}

func Test_CeilToPage_Rounds_Up_To_Next_Page(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(0), ceilToPage(0))
	assert.Equal(t, uint64(PageSize), ceilToPage(1))
	assert.Equal(t, uint64(PageSize), ceilToPage(PageSize))
	assert.Equal(t, uint64(2*PageSize), ceilToPage(PageSize+1))
}

func Test_ValidateRegionID_Rejects_Empty_And_TooLong_And_Control_Chars(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, validateRegionID(""), ErrInvalidID)
	require.ErrorIs(t, validateRegionID(string(make([]byte, maxIDLen+1))), ErrInvalidID)
	require.ErrorIs(t, validateRegionID("bad\x01id"), ErrInvalidID)
	require.NoError(t, validateRegionID("perfectly-fine-id"))
}

func Test_CeilToPowerOfTwoPages_Doubles_Until_It_Fits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(PageSize), ceilToPowerOfTwoPages(1))
	assert.Equal(t, uint64(2*PageSize), ceilToPowerOfTwoPages(PageSize+1))
	assert.Equal(t, uint64(4*PageSize), ceilToPowerOfTwoPages(2*PageSize+1))
}
