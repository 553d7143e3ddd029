// Package trackfile classifies uploaded activity files and runs them through
// the matching decoder and the track aggregator. It holds no state and does
// no I/O, so it also builds for js/wasm.
package trackfile

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tormoder/fit"
)

// MaxUploadBytes is the default acceptance cap.
const MaxUploadBytes int64 = 50 << 20

var (
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrFileTooLarge         = errors.New("file exceeds upload size limit")
)

// Format is a supported upload format.
type Format string

const (
	FormatFIT Format = "fit"
	FormatGPX Format = "gpx"
)

var extensions = map[string]Format{
	".fit": FormatFIT,
	".gpx": FormatGPX,
}

// CheckAcceptance applies the preconditions that run before any decode work:
// a supported extension (case-insensitive) and a size within maxBytes.
// A non-positive maxBytes means MaxUploadBytes.
func CheckAcceptance(filename string, size, maxBytes int64) error {
	if _, ok := extensions[strings.ToLower(filepath.Ext(filename))]; !ok {
		return fmt.Errorf("%w: %q (expected .fit or .gpx)", ErrUnsupportedExtension, filepath.Ext(filename))
	}
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrFileTooLarge, size, maxBytes)
	}
	return nil
}

// Detect classifies an upload. The extension selects the format unless the
// content is unmistakably the other one, in which case the content wins.
func Detect(filename string, data []byte) (Format, error) {
	byExt, ok := extensions[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, filepath.Ext(filename))
	}
	if sniffed, ok := sniff(data); ok {
		return sniffed, nil
	}
	return byExt, nil
}

func sniff(data []byte) (Format, bool) {
	if _, err := fit.DecodeHeader(bytes.NewReader(data)); err == nil {
		return FormatFIT, true
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	head = bytes.TrimLeft(head, " \t\r\n")
	if bytes.HasPrefix(head, []byte("<?xml")) || bytes.HasPrefix(head, []byte("<gpx")) {
		if bytes.Contains(head, []byte("<gpx")) {
			return FormatGPX, true
		}
	}
	return "", false
}
