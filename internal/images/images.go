// Package images normalizes uploaded avatar pictures: any accepted
// input is resized to a fixed square and re-encoded as PNG before it is
// stored.
package images

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// AvatarSize is the side length of the stored square avatar.
	AvatarSize = 250

	// MaxAvatarBytes is the upload size limit for avatar files.
	MaxAvatarBytes = 1_000_000
)

// ErrUnsupportedExtension is returned for files that are not jpg, jpeg
// or png by extension.
var ErrUnsupportedExtension = errors.New("file extension not valid, only jpg, jpeg, png extensions are allowed")

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// CheckExtension validates the uploaded filename's extension.
func CheckExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return ErrUnsupportedExtension
	}
	return nil
}

// NormalizeAvatar decodes the uploaded image, resizes it to
// AvatarSize x AvatarSize and encodes the result as PNG.
func NormalizeAvatar(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New("unable to decode image")
	}

	resized := imaging.Resize(img, AvatarSize, AvatarSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
