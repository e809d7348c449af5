package storage

import (
	"fmt"
	"strings"
)

func objectKey(lectureID int64, kind, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("lecture_%d/%s%s", lectureID, kind, ext)
}
