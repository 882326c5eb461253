package validator

import (
	"bytes"
	"image"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeott/docpipeline/pkg/logger"
)

// uploadHeader builds a multipart.FileHeader the way gin hands it to the
// handler, by round-tripping a real multipart request.
func uploadHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))

	return req.MultipartForm.File["file"][0]
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func newTestValidator(maxSize int64) *DocumentValidator {
	return NewDocumentValidator(logger.NewTestLogger(), DefaultValidatorConfig(maxSize))
}

func TestValidateAcceptsPDF(t *testing.T) {
	v := newTestValidator(1 << 20)
	header := uploadHeader(t, "report.pdf", []byte("%PDF-1.7 minimal content"))

	result, err := v.ValidateFile(header)
	require.NoError(t, err)
	assert.True(t, result.IsValid, "errors: %v", result.Errors)
	assert.Equal(t, ".pdf", result.FileInfo.Extension)
	assert.NotEmpty(t, result.FileInfo.Hash)
}

func TestValidateRejectsUnknownExtension(t *testing.T) {
	v := newTestValidator(1 << 20)
	header := uploadHeader(t, "notes.docx", []byte("whatever"))

	result, err := v.ValidateFile(header)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "INVALID_FILE_TYPE", result.Errors[0].Code)
}

func TestValidateRejectsOversizedFile(t *testing.T) {
	v := newTestValidator(10)
	header := uploadHeader(t, "big.pdf", []byte("%PDF-1.7 well over ten bytes"))

	result, err := v.ValidateFile(header)
	require.NoError(t, err)
	assert.False(t, result.IsValid)

	codes := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, "FILE_TOO_LARGE")
}

func TestValidateRejectsMismatchedContent(t *testing.T) {
	v := newTestValidator(1 << 20)
	// a PNG wearing a .pdf extension.
	header := uploadHeader(t, "sneaky.pdf", pngBytes(t, 200, 200))

	result, err := v.ValidateFile(header)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
}

func TestValidateAcceptsPNG(t *testing.T) {
	v := newTestValidator(1 << 20)
	header := uploadHeader(t, "scan.png", pngBytes(t, 200, 300))

	result, err := v.ValidateFile(header)
	require.NoError(t, err)
	assert.True(t, result.IsValid, "errors: %v", result.Errors)
	assert.Equal(t, "image/png", result.FileInfo.MimeType)
}

func TestValidateRejectsTinyImage(t *testing.T) {
	v := newTestValidator(1 << 20)
	header := uploadHeader(t, "thumb.png", pngBytes(t, 10, 10))

	result, err := v.ValidateFile(header)
	require.NoError(t, err)
	assert.False(t, result.IsValid)

	codes := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, "IMAGE_TOO_SMALL")
}
