// Package upload turns user input (a picked file, a dropped file or an image URL) into
// the single in-memory payload sent to the prediction API.
package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/gabriel-vasile/mimetype"
)

// ErrNotImage is returned when dropped content is not an image.
var ErrNotImage = errors.New("not an image")

// Payload is an image ready to be submitted.
type Payload struct {
	Name   string // filename sent in the multipart form
	Ref    string // where the image came from: a local path or a source URL
	MIME   string // sniffed content type, without parameters
	Digest string // hex xxhash64 of Data
	Data   []byte
}

// Size returns the payload size in bytes.
func (p Payload) Size() int {
	return len(p.Data)
}

// IsImage reports whether the sniffed MIME type begins with "image/".
func (p Payload) IsImage() bool {
	return strings.HasPrefix(p.MIME, "image/")
}

// NewPayload sniffs and fingerprints data.
func NewPayload(name, ref string, data []byte) Payload {
	mime := mimetype.Detect(data).String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	return Payload{
		Name:   name,
		Ref:    ref,
		MIME:   mime,
		Digest: fmt.Sprintf("%016x", xxhash.Checksum64(data)),
		Data:   data,
	}
}

// FromFile reads a file chosen through the file picker path. Content is not validated;
// filtering happens when the path list is built (see Expand).
func FromFile(path string) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, fmt.Errorf("read image: %w", err)
	}

	ref := path
	if abs, err := filepath.Abs(path); err == nil {
		ref = abs
	}

	return NewPayload(filepath.Base(path), ref, data), nil
}

// FromDrop reads a dropped file and rejects anything whose sniffed type is not an image.
func FromDrop(path string) (Payload, error) {
	p, err := FromFile(path)
	if err != nil {
		return Payload{}, err
	}

	if !p.IsImage() {
		return Payload{}, fmt.Errorf("%s (%s): %w", p.Name, p.MIME, ErrNotImage)
	}

	return p, nil
}
