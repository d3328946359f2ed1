package tiling

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyImage = errors.New("empty image payload")

// Image is a base64 payload without any data-URL prefix.
type Image struct {
	Data     string `json:"data"`
	MIMEType string `json:"mime_type"`
}

// NewImage accepts raw base64 or a data URL. The MIME type embedded in a data
// URL wins over mime when mime is empty.
func NewImage(data, mime string) Image {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, "base64,"); i >= 0 {
			if mime == "" {
				mime = strings.TrimSuffix(strings.TrimPrefix(data[:i], "data:"), ";")
			}
			data = data[i+len("base64,"):]
		}
	}
	if mime == "" {
		mime = "image/png"
	}
	return Image{Data: data, MIMEType: mime}
}

// FromBytes encodes raw image bytes.
func FromBytes(b []byte, mime string) Image {
	return NewImage(base64.StdEncoding.EncodeToString(b), mime)
}

func (im Image) Empty() bool { return im.Data == "" }

// Size is the encoded payload length, the quantity the tiling threshold uses.
func (im Image) Size() int { return len(im.Data) }

func (im Image) Bytes() ([]byte, error) {
	if im.Empty() {
		return nil, ErrEmptyImage
	}
	b, err := base64.StdEncoding.DecodeString(im.Data)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return b, nil
}
