package fileread_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/smart-card-reader/pkg/fileread"
	"github.com/gregLibert/smart-card-reader/pkg/iso7816"
	"github.com/gregLibert/smart-card-reader/pkg/reader"
	"github.com/gregLibert/smart-card-reader/pkg/reader/readertest"
)

const testFID = 0x0101

func payload(n int) []byte {
	return bytes.Repeat([]byte("0123456789ABCDEF"), n/16+1)[:n]
}

func newReader(t *testing.T, card *readertest.Card, opts ...fileread.Option) *fileread.Reader {
	t.Helper()

	drv := readertest.NewDriver()
	drv.Handler = card.Handle
	return fileread.New(readertest.Slot(reader.NewTransport(drv), 0), opts...)
}

func TestBatchCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		declared, chunk, want int
	}{
		{600, 253, 3},
		{253, 253, 1},
		{254, 253, 2},
		{1, 253, 1},
		{0, 253, 0},
		{600, 0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, fileread.BatchCount(tt.declared, tt.chunk),
			"BatchCount(%d, %d)", tt.declared, tt.chunk)
	}
}

func TestRead(t *testing.T) {
	t.Parallel()

	content := payload(600)
	card := &readertest.Card{
		Files: map[uint16][]byte{testFID: readertest.LengthPrefixed(content)},
	}

	f, err := newReader(t, card).Read(context.Background(), testFID)
	require.NoError(t, err)

	assert.Equal(t, "3F00/0101", f.Path)
	assert.Equal(t, 600, f.Declared)
	assert.Equal(t, content, f.Content)

	// Length header read, then three batches each starting at the accumulated length.
	assert.Equal(t, []int{0, 0, 255, 510}, card.ReadOffsets())

	require.NotNil(t, f.Control)
	size, ok := f.Control.FileSize()
	assert.True(t, ok)
	assert.Equal(t, 602, size)

	// SELECT MF, SELECT EF + GET RESPONSE, length, three batches.
	assert.Len(t, f.Trace, 7)
}

func TestReadSmallFile(t *testing.T) {
	t.Parallel()

	content := []byte("HELLO")
	card := &readertest.Card{
		Files: map[uint16][]byte{testFID: readertest.LengthPrefixed(content)},
	}

	f, err := newReader(t, card).Read(context.Background(), testFID)
	require.NoError(t, err)

	assert.Equal(t, content, f.Content)
	assert.Equal(t, []int{0, 0}, card.ReadOffsets())
}

func TestReadEmptyFile(t *testing.T) {
	t.Parallel()

	card := &readertest.Card{
		Files: map[uint16][]byte{testFID: {0x00, 0x00}},
	}

	f, err := newReader(t, card).Read(context.Background(), testFID)
	require.NoError(t, err)

	assert.Empty(t, f.Content)
	assert.NotNil(t, f.Content)
	assert.Equal(t, []int{0}, card.ReadOffsets())
}

func TestReadShortRead(t *testing.T) {
	t.Parallel()

	// Header announces 600 bytes, the EF only holds 298 of them.
	raw := readertest.LengthPrefixed(payload(600))[:300]
	card := &readertest.Card{Files: map[uint16][]byte{testFID: raw}}

	f, err := newReader(t, card).Read(context.Background(), testFID)
	require.Error(t, err)
	assert.Nil(t, f)

	assert.ErrorIs(t, err, fileread.ErrShortRead)
	assert.ErrorIs(t, err, reader.ErrProtocolViolation)
	assert.NotErrorIs(t, err, reader.ErrTransport)

	// The third batch got nothing back and ended the loop.
	assert.Equal(t, []int{0, 0, 255, 300}, card.ReadOffsets())
}

func TestReadTransportErrorInSecondBatch(t *testing.T) {
	t.Parallel()

	card := &readertest.Card{
		Files: map[uint16][]byte{testFID: readertest.LengthPrefixed(payload(600))},
		// Read 1 is the length header, read 3 is the second body batch.
		FailRead: 3,
	}

	f, err := newReader(t, card).Read(context.Background(), testFID)
	require.Error(t, err)
	assert.Nil(t, f)

	assert.ErrorIs(t, err, reader.ErrTransport)
	assert.ErrorIs(t, err, readertest.ErrInjected)
	assert.NotErrorIs(t, err, fileread.ErrShortRead)
	assert.NotErrorIs(t, err, reader.ErrProtocolViolation)

	assert.Equal(t, []int{0, 0, 255}, card.ReadOffsets())
}

func TestReadIncompleteWithoutShortRead(t *testing.T) {
	t.Parallel()

	// The card never returns more than 100 bytes, so three batches cannot cover 602 bytes.
	card := &readertest.Card{
		Files:   map[uint16][]byte{testFID: readertest.LengthPrefixed(payload(600))},
		MaxRead: 100,
	}

	_, err := newReader(t, card).Read(context.Background(), testFID)
	require.Error(t, err)

	assert.ErrorIs(t, err, reader.ErrProtocolViolation)
	assert.NotErrorIs(t, err, fileread.ErrShortRead)
	assert.Equal(t, []int{0, 0, 100, 200}, card.ReadOffsets())
}

func TestReadFileNotFound(t *testing.T) {
	t.Parallel()

	card := &readertest.Card{Files: map[uint16][]byte{}}

	_, err := newReader(t, card).Read(context.Background(), 0x0202)
	require.Error(t, err)

	var pe *reader.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "select file", pe.Op)
	assert.Equal(t, iso7816.SW_ERR_FILE_NOT_FOUND, pe.Status)
	assert.Empty(t, card.ReadOffsets())
}

func TestReadDirectoryByAID(t *testing.T) {
	t.Parallel()

	aid := []byte{0xA0, 0x00, 0x00, 0x02, 0x47, 0x10, 0x01}
	content := payload(40)

	t.Run("matching application", func(t *testing.T) {
		t.Parallel()

		card := &readertest.Card{
			AID:   aid,
			Files: map[uint16][]byte{testFID: readertest.LengthPrefixed(content)},
		}

		f, err := newReader(t, card, fileread.WithDirectoryAID(aid)).Read(context.Background(), testFID)
		require.NoError(t, err)
		assert.Equal(t, "A0000002471001/0101", f.Path)
		assert.Equal(t, content, f.Content)
	})

	t.Run("unknown application", func(t *testing.T) {
		t.Parallel()

		card := &readertest.Card{
			Files: map[uint16][]byte{testFID: readertest.LengthPrefixed(content)},
		}

		_, err := newReader(t, card, fileread.WithDirectoryAID(aid)).Read(context.Background(), testFID)

		var pe *reader.ProtocolError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "select directory", pe.Op)
	})
}

func TestReadCustomChunking(t *testing.T) {
	t.Parallel()

	content := payload(300)
	card := &readertest.Card{
		Files: map[uint16][]byte{testFID: readertest.LengthPrefixed(content)},
	}

	r := newReader(t, card, fileread.WithChunkSize(100), fileread.WithLe(102))
	f, err := r.Read(context.Background(), testFID)
	require.NoError(t, err)

	assert.Equal(t, content, f.Content)
	assert.Equal(t, []int{0, 0, 102, 204}, card.ReadOffsets())
}

func TestReadShortReadKeepsStatus(t *testing.T) {
	t.Parallel()

	card := &readertest.Card{
		Files: map[uint16][]byte{testFID: readertest.LengthPrefixed(payload(600))},
	}
	reads := 0
	drv := readertest.NewDriver()
	drv.Handler = func(ctx context.Context, slot int, command string) (string, error) {
		if strings.HasPrefix(command, "00B0") {
			reads++
			// The second body batch is refused without data.
			if reads == 3 {
				return "6A82", nil
			}
		}
		return card.Handle(ctx, slot, command)
	}

	_, err := fileread.New(readertest.Slot(reader.NewTransport(drv), 0)).Read(context.Background(), testFID)
	require.Error(t, err)

	assert.ErrorIs(t, err, fileread.ErrShortRead)
	var pe *reader.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "read body", pe.Op)
	assert.Equal(t, iso7816.SW_ERR_FILE_NOT_FOUND, pe.Status)
}

func TestFileReport(t *testing.T) {
	t.Parallel()

	card := &readertest.Card{
		Files: map[uint16][]byte{testFID: readertest.LengthPrefixed([]byte("HELLO"))},
	}

	f, err := newReader(t, card).Read(context.Background(), testFID)
	require.NoError(t, err)

	// SELECT MF, SELECT EF with its GET RESPONSE, length header, one batch.
	require.Len(t, f.Steps, 4)
	assert.Len(t, f.Steps[1], 2)

	report := f.Report()
	assert.Equal(t, 2, strings.Count(report, "=== SELECT COMMAND REPORT ==="))
	assert.Equal(t, 2, strings.Count(report, "=== READ BINARY COMMAND REPORT ==="))
	assert.Contains(t, report, `"..HELLO"`)
	assert.Contains(t, report, "End of file reached")
}
