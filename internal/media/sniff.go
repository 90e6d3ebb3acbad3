package media

import (
	"bytes"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Class is the kind of media a caller expects, used to pick a default.
type Class int

const (
	Image Class = iota
	Video
)

func (c Class) prefix() string {
	if c == Video {
		return "video/"
	}
	return "image/"
}

func (c Class) fallback() string {
	if c == Video {
		return "video/mp4"
	}
	return "application/octet-stream"
}

var signatures = []struct {
	offset int
	magic  []byte
	mime   string
}{
	{4, []byte("ftyp"), "video/mp4"},
	{0, []byte{0x1A, 0x45, 0xDF, 0xA3}, "video/webm"},
	{0, []byte("OggS"), "video/ogg"},
	{0, []byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{0, []byte{0x89, 0x50, 0x4E, 0x47}, "image/png"},
	{0, []byte{0x47, 0x49, 0x46, 0x38}, "image/gif"},
}

// Sniff classifies buf by its leading bytes.  The container signatures we
// serve are checked first; other formats of the expected class (webp, bmp,
// quicktime...) are recognised by mimetype; anything else gets the class
// default.
func Sniff(buf []byte, class Class) string {
	for _, s := range signatures {
		if len(buf) >= s.offset+len(s.magic) && bytes.Equal(buf[s.offset:s.offset+len(s.magic)], s.magic) {
			return s.mime
		}
	}
	if len(buf) > 0 {
		if m := mimetype.Detect(buf); strings.HasPrefix(m.String(), class.prefix()) {
			return m.String()
		}
	}
	return class.fallback()
}
