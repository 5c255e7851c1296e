// Package ocr provides OCR (Optical Character Recognition) functionality using Tesseract.
// This is used to read the text in photos users send to the bot.
package ocr

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Supported image MIME types for OCR
var SupportedMimeTypes = []string{
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/gif",
	"image/bmp",
	"image/tiff",
	"image/webp",
}

// minPreprocessWidth is the width below which images are upscaled before OCR.
// Tesseract loses accuracy on small glyphs.
const minPreprocessWidth = 1000

// Config holds the OCR configuration
type Config struct {
	// TesseractPath is the path to the tesseract executable
	TesseractPath string
	// DataPath is the path to the tessdata directory (optional)
	DataPath string
	// Languages are the languages to use for OCR (e.g., "eng+deu")
	Languages string
	// Preprocess converts images to upscaled grayscale PNG before recognition.
	Preprocess bool
}

// DefaultConfig returns the default OCR configuration
func DefaultConfig() *Config {
	return &Config{
		TesseractPath: "tesseract",
		DataPath:      "",
		Languages:     "eng",
		Preprocess:    true,
	}
}

// Client provides OCR functionality
type Client struct {
	config *Config
}

// NewClient creates a new OCR client
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TesseractPath == "" {
		config.TesseractPath = "tesseract"
	}
	return &Client{config: config}
}

// ExtractText extracts text from an image using Tesseract OCR.
// An image without readable text yields an empty string and no error.
func (c *Client) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if mimeType != "" && !c.isSupported(mimeType) {
		return "", errors.Errorf("unsupported MIME type: %s", mimeType)
	}
	if len(image) == 0 {
		return "", errors.New("empty image")
	}

	if c.config.Preprocess {
		if processed, err := Preprocess(image); err == nil {
			image = processed
		} else {
			slog.Debug("image preprocessing skipped", "error", err)
		}
	}

	tmpFile, err := os.CreateTemp("", "ocr_*.png")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(image); err != nil {
		tmpFile.Close()
		return "", errors.Wrap(err, "failed to write temp file")
	}
	if err := tmpFile.Close(); err != nil {
		return "", errors.Wrap(err, "failed to close temp file")
	}

	// Tesseract appends .txt to the output base name.
	outPath := strings.TrimSuffix(tmpPath, filepath.Ext(tmpPath))

	args := []string{tmpPath, outPath}
	if c.config.Languages != "" {
		args = append(args, "-l", c.config.Languages)
	}
	if c.config.DataPath != "" {
		args = append(args, "--tessdata-dir", c.config.DataPath)
	}

	cmd := exec.CommandContext(ctx, c.config.TesseractPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		slog.Warn("tesseract command failed", "error", err, "stderr", stderr.String())
		return "", errors.Wrap(err, "tesseract command failed")
	}

	txtPath := outPath + ".txt"
	defer os.Remove(txtPath)

	text, err := os.ReadFile(txtPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to read OCR output")
	}

	return strings.TrimSpace(string(text)), nil
}

// Preprocess decodes an image, converts it to grayscale, upscales narrow
// images and re-encodes it as PNG.
func Preprocess(image []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(image), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}

	gray := imaging.Grayscale(img)
	if w := gray.Bounds().Dx(); w > 0 && w < minPreprocessWidth {
		gray = imaging.Resize(gray, minPreprocessWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "failed to encode image")
	}
	return buf.Bytes(), nil
}

// GetVersion returns the first line of `tesseract --version`, e.g. "tesseract 5.3.4".
// An error means the binary cannot be run.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.config.TesseractPath, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	// Older releases print the version to stderr.
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "run %s --version", c.config.TesseractPath)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(out.String()), "\n")
	if first == "" {
		return "", errors.New("tesseract printed no version")
	}
	return strings.TrimSpace(first), nil
}

func (c *Client) isSupported(mimeType string) bool {
	for _, supported := range SupportedMimeTypes {
		if strings.EqualFold(mimeType, supported) {
			return true
		}
	}
	return false
}
