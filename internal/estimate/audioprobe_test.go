package estimate

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWav produces a minimal PCM WAV file with the given data length and
// byte rate.
func writeWav(t *testing.T, byteRate, dataSize uint32) string {
	t.Helper()

	fmtChunk := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtChunk[0:2], 1)  // PCM
	binary.LittleEndian.PutUint16(fmtChunk[2:4], 1)  // mono
	binary.LittleEndian.PutUint32(fmtChunk[4:8], byteRate)
	binary.LittleEndian.PutUint32(fmtChunk[8:12], byteRate)
	binary.LittleEndian.PutUint16(fmtChunk[12:14], 2)
	binary.LittleEndian.PutUint16(fmtChunk[14:16], 16)

	var buf []byte
	buf = append(buf, []byte("RIFF")...)
	sizeField := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeField, 36+dataSize)
	buf = append(buf, sizeField...)
	buf = append(buf, []byte("WAVE")...)

	buf = append(buf, []byte("fmt ")...)
	chunkSize := make([]byte, 4)
	binary.LittleEndian.PutUint32(chunkSize, 16)
	buf = append(buf, chunkSize...)
	buf = append(buf, fmtChunk...)

	buf = append(buf, []byte("data")...)
	dataField := make([]byte, 4)
	binary.LittleEndian.PutUint32(dataField, dataSize)
	buf = append(buf, dataField...)
	buf = append(buf, make([]byte, dataSize)...)

	path := filepath.Join(t.TempDir(), "probe.wav")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestWavDuration(t *testing.T) {
	// 32000 bytes/sec, 96000 bytes of samples: 3 seconds.
	path := writeWav(t, 32000, 96000)

	sec, err := wavDuration(path)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, sec, 1e-9)
}

func TestWavDurationRejectsNonWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.wav")
	require.NoError(t, os.WriteFile(path, []byte("ID3 definitely an mp3 header"), 0o644))

	_, err := wavDuration(path)
	assert.Error(t, err)
}

func TestWavDurationMissingFile(t *testing.T) {
	_, err := wavDuration(filepath.Join(t.TempDir(), "absent.wav"))
	assert.Error(t, err)
}
