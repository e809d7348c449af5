package validator

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/lecturanote/lecture-processor/pkg/logger"
)

// Kind selects which allowlist an upload is validated against.
type Kind string

const (
	KindAudio Kind = "audio"
	KindPDF   Kind = "pdf"
)

// Config bounds what an upload may be.
type Config struct {
	MaxAudioSize int64
	MaxPDFSize   int64
	// AllowedTypes maps extension to accepted sniffed MIME prefixes.
	AllowedTypes map[Kind]map[string][]string
}

func DefaultConfig() *Config {
	return &Config{
		MaxAudioSize: 500 * 1024 * 1024,
		MaxPDFSize:   100 * 1024 * 1024,
		AllowedTypes: map[Kind]map[string][]string{
			KindAudio: {
				".mp3":  {"audio/mpeg", "application/octet-stream"},
				".wav":  {"audio/wave", "audio/x-wav", "audio/wav"},
				".m4a":  {"audio/mp4", "video/mp4", "application/octet-stream"},
				".ogg":  {"audio/ogg", "application/ogg"},
				".flac": {"audio/flac", "application/octet-stream"},
			},
			KindPDF: {
				".pdf": {"application/pdf"},
			},
		},
	}
}

// ValidationError describes one rejected aspect of an upload.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Message
}

// UploadValidator checks lecture uploads before they touch storage.
type UploadValidator struct {
	cfg *Config
	log logger.Logger
}

func NewUploadValidator(cfg *Config, log logger.Logger) *UploadValidator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &UploadValidator{cfg: cfg, log: log.Named("validator")}
}

// Validate checks one multipart upload against the kind's allowlist:
// extension, size bound, and sniffed content type. Returns the extension
// for key construction.
func (v *UploadValidator) Validate(header *multipart.FileHeader, kind Kind) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))

	allowed, ok := v.cfg.AllowedTypes[kind][ext]
	if !ok {
		return "", ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("file type %q is not allowed for %s upload", ext, kind),
		}
	}

	maxSize := v.cfg.MaxPDFSize
	if kind == KindAudio {
		maxSize = v.cfg.MaxAudioSize
	}
	if header.Size > maxSize {
		return "", ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("%s upload exceeds the %d byte limit", kind, maxSize),
		}
	}

	mimeType, err := sniffContentType(header)
	if err != nil {
		return "", fmt.Errorf("sniff content type: %w", err)
	}
	for _, m := range allowed {
		if strings.HasPrefix(mimeType, m) {
			return ext, nil
		}
	}

	v.log.Warn("upload rejected on content type",
		logger.String("filename", header.Filename),
		logger.String("sniffed", mimeType))
	return "", ValidationError{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("content type %s does not match extension %s", mimeType, ext),
	}
}

func sniffContentType(header *multipart.FileHeader) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	buffer := make([]byte, 512)
	n, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}
	return http.DetectContentType(buffer[:n]), nil
}
