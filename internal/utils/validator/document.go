package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/joeott/docpipeline/pkg/logger"
)

// DocumentValidator checks uploaded files before they enter the pipeline.
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig bounds what the intake endpoint accepts.
type ValidatorConfig struct {
	MaxFileSize  int64               // bytes
	AllowedTypes map[string][]string // extension -> acceptable MIME types
	MinDimension int                 // image pixels
	MaxDimension int                 // image pixels
}

// ValidationResult reports validity plus the file facts gathered on the way.
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// DefaultValidatorConfig accepts the formats both OCR backends can read.
func DefaultValidatorConfig(maxFileSize int64) *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: maxFileSize,
		AllowedTypes: map[string][]string{
			".pdf":  {"application/pdf"},
			".jpg":  {"image/jpeg"},
			".jpeg": {"image/jpeg"},
			".png":  {"image/png"},
			".tiff": {"image/tiff"},
		},
		MinDimension: 100,
		MaxDimension: 10000,
	}
}

// NewDocumentValidator creates a validator; a nil config uses the defaults
// with a 50MB cap.
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultValidatorConfig(50 << 20)
	}
	return &DocumentValidator{logger: log, config: config}
}

// ValidateFile checks a single multipart upload.
func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  file.Filename,
			Size:      file.Size,
			Extension: strings.ToLower(filepath.Ext(file.Filename)),
		},
	}

	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	hash, err := calculateHash(f)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}

	result.addErrors(v.checkBasics(result.FileInfo))

	mimeType, err := detectMimeType(f)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mimeType

	result.addErrors(v.checkMimeType(result.FileInfo))
	result.addErrors(v.checkContent(f, result.FileInfo))

	if !result.IsValid {
		v.logger.Warn("Upload rejected",
			logger.String("filename", file.Filename),
			logger.Int("errors", len(result.Errors)),
		)
	}

	return result, nil
}

func (r *ValidationResult) addErrors(errs []ValidationError) {
	if len(errs) > 0 {
		r.IsValid = false
		r.Errors = append(r.Errors, errs...)
	}
}

func (v *DocumentValidator) checkBasics(info FileInfo) []ValidationError {
	var errs []ValidationError

	if info.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if info.Size == 0 {
		errs = append(errs, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "File is empty",
			Field:   "size",
		})
	}

	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("File type %s is not allowed", info.Extension),
			Field:   "extension",
		})
	}

	return errs
}

func (v *DocumentValidator) checkMimeType(info FileInfo) []ValidationError {
	allowed, ok := v.config.AllowedTypes[info.Extension]
	if !ok {
		return nil // extension already rejected by checkBasics
	}

	for _, mime := range allowed {
		if mime == info.MimeType {
			return nil
		}
	}

	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("Invalid MIME type %s for extension %s", info.MimeType, info.Extension),
		Field:   "mimeType",
	}}
}

func (v *DocumentValidator) checkContent(file multipart.File, info FileInfo) []ValidationError {
	switch info.Extension {
	case ".pdf":
		return v.checkPDF(file)
	case ".jpg", ".jpeg", ".png", ".tiff":
		return v.checkImage(file)
	}
	return nil
}

// checkPDF rejects files whose header is not a PDF marker regardless of
// what the extension claims.
func (v *DocumentValidator) checkPDF(file multipart.File) []ValidationError {
	header := make([]byte, 5)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil
	}
	if _, err := io.ReadFull(file, header); err != nil {
		return []ValidationError{{
			Code:    "CORRUPT_PDF",
			Message: "File is too short to be a PDF",
			Field:   "content",
		}}
	}
	if !bytes.Equal(header, []byte("%PDF-")) {
		return []ValidationError{{
			Code:    "CORRUPT_PDF",
			Message: "File does not start with a PDF header",
			Field:   "content",
		}}
	}
	return nil
}

func (v *DocumentValidator) checkImage(file multipart.File) []ValidationError {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil
	}

	img, err := imaging.Decode(file)
	if err != nil {
		return []ValidationError{{
			Code:    "CORRUPT_IMAGE",
			Message: "File could not be decoded as an image",
			Field:   "content",
		}}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < v.config.MinDimension || h < v.config.MinDimension {
		return []ValidationError{{
			Code:    "IMAGE_TOO_SMALL",
			Message: fmt.Sprintf("Image %dx%d is below the %dpx minimum", w, h, v.config.MinDimension),
			Field:   "content",
		}}
	}
	if w > v.config.MaxDimension || h > v.config.MaxDimension {
		return []ValidationError{{
			Code:    "IMAGE_TOO_LARGE",
			Message: fmt.Sprintf("Image %dx%d exceeds the %dpx maximum", w, h, v.config.MaxDimension),
			Field:   "content",
		}}
	}

	return nil
}

func detectMimeType(file multipart.File) (string, error) {
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buffer[:n]), nil
}

func calculateHash(file multipart.File) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
