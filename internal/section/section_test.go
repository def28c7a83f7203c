package section_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WKHAllen/encrypted-backup/internal/apperrors"
	"github.com/WKHAllen/encrypted-backup/internal/section"
)

func TestEncodeDecodeLenRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 255, 256, 65536, 65564, 1 << 32, (1 << 40) - 1}

	for _, n := range cases {
		encoded := section.EncodeLen(n)
		assert.Equal(t, n, section.DecodeLen(encoded))
	}
}

func TestEncodeLenBigEndian(t *testing.T) {
	encoded := section.EncodeLen(1)
	assert.Equal(t, [section.LenSize]byte{0, 0, 0, 0, 1}, encoded)
}

func TestWriteReadSectionRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("some encrypted chunk bytes")

	require.NoError(t, section.WriteSection(&buf, payload))

	got, err := section.ReadSection(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadSectionEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, section.WriteSection(&buf, nil))

	got, err := section.ReadSection(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadSectionCleanEOF(t *testing.T) {
	got, err := section.ReadSection(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadSectionPartialLengthPrefix(t *testing.T) {
	_, err := section.ReadSection(bytes.NewReader([]byte{0, 0}))
	require.Error(t, err)
	assert.True(t, apperrors.IsIOError(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadSectionTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, section.WriteSection(&buf, []byte("0123456789")))

	truncated := buf.Bytes()[:section.LenSize+3]

	_, err := section.ReadSection(bytes.NewReader(truncated))
	require.Error(t, err)
	assert.True(t, apperrors.IsIOError(err))
}

func TestMultipleSectionsInSequence(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}

	for _, p := range payloads {
		require.NoError(t, section.WriteSection(&buf, p))
	}

	for _, want := range payloads {
		got, err := section.ReadSection(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := section.ReadSection(&buf)
	require.NoError(t, err)
	assert.Nil(t, got)
}
