package estimate

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// AudioDuration returns the audio file's duration in seconds. It tries, in
// order: a container header read, an ffprobe metadata query, and a full
// ffmpeg decode of the stream. The first success wins.
func AudioDuration(ctx context.Context, path string) (float64, error) {
	if sec, err := wavDuration(path); err == nil {
		return sec, nil
	}
	if sec, err := ffprobeDuration(ctx, path); err == nil {
		return sec, nil
	}
	if sec, err := ffmpegDecodeDuration(ctx, path); err == nil {
		return sec, nil
	}
	return 0, fmt.Errorf("unable to determine audio duration of %s", path)
}

// wavDuration reads the duration of a RIFF/WAVE file from its fmt and data
// chunks without decoding samples.
func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := f.Read(header); err != nil {
		return 0, err
	}
	if !bytes.Equal(header[0:4], []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WAVE")) {
		return 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var byteRate uint32
	var dataSize uint32
	chunkHeader := make([]byte, 8)
	for {
		if _, err := f.Read(chunkHeader); err != nil {
			break
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			fmtChunk := make([]byte, chunkSize)
			if _, err := f.Read(fmtChunk); err != nil {
				return 0, err
			}
			if len(fmtChunk) < 12 {
				return 0, fmt.Errorf("malformed fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
		case "data":
			dataSize = chunkSize
			if byteRate != 0 {
				return float64(dataSize) / float64(byteRate), nil
			}
			if _, err := f.Seek(int64(chunkSize), 1); err != nil {
				return 0, err
			}
		default:
			if _, err := f.Seek(int64(chunkSize), 1); err != nil {
				return 0, err
			}
		}
	}

	if byteRate != 0 && dataSize != 0 {
		return float64(dataSize) / float64(byteRate), nil
	}
	return 0, fmt.Errorf("missing fmt or data chunk")
}

// ffprobeDuration asks the ffprobe utility for the container duration.
func ffprobeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration: %w", err)
	}
	return sec, nil
}

var decodeTimeRe = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2})\.(\d+)`)

// ffmpegDecodeDuration decodes the whole stream to measure its length.
// Last resort; cost grows with the recording.
func ffmpegDecodeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-f", "null", "-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	// The last progress line carries the final decoded position.
	all := decodeTimeRe.FindAllStringSubmatch(stderr.String(), -1)
	if len(all) == 0 {
		return 0, fmt.Errorf("no decode position in ffmpeg output")
	}
	m := all[len(all)-1]
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	frac, _ := strconv.ParseFloat("0."+m[4], 64)
	return float64(hours*3600+minutes*60+seconds) + frac, nil
}
