package media

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// ErrNoData is returned for a NULL column.
var ErrNoData = errors.New("no binary data")

// Encoding identifies how a binary column value reached us.
type Encoding int

const (
	EncodingRaw          Encoding = iota // native bytes
	EncodingBufferObject                 // {"type":"Buffer","data":[...]}
	EncodingHex                          // Postgres escape form \x0a0b...
	EncodingUnknown
)

type bufferObject struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

var bufferPrefix = []byte(`{"type":"Buffer"`)

// Detect classifies raw without decoding it.
func Detect(raw any) Encoding {
	switch v := raw.(type) {
	case []byte:
		return detectBytes(v)
	case string:
		return detectBytes([]byte(v))
	case map[string]any:
		if t, _ := v["type"].(string); t == "Buffer" {
			return EncodingBufferObject
		}
	}
	return EncodingUnknown
}

func detectBytes(b []byte) Encoding {
	switch {
	case isHexEscaped(b):
		return EncodingHex
	case bytes.HasPrefix(bytes.TrimSpace(b), bufferPrefix):
		return EncodingBufferObject
	default:
		return EncodingRaw
	}
}

// isHexEscaped requires the whole payload after \x to be valid hex so real
// binary that happens to start with those two bytes is left alone.
func isHexEscaped(b []byte) bool {
	if len(b) < 2 || b[0] != '\\' || b[1] != 'x' || len(b)%2 != 0 {
		return false
	}
	for _, c := range b[2:] {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// ToBytes normalizes a binary column value to its canonical bytes.
func ToBytes(raw any) ([]byte, error) {
	if raw == nil {
		return nil, ErrNoData
	}
	switch Detect(raw) {
	case EncodingRaw:
		switch v := raw.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
	case EncodingHex:
		return hex.DecodeString(asString(raw)[2:])
	case EncodingBufferObject:
		return decodeBufferObject(raw)
	}
	return nil, fmt.Errorf("unsupported binary value of type %T", raw)
}

func asString(raw any) string {
	if b, ok := raw.([]byte); ok {
		return string(b)
	}
	s, _ := raw.(string)
	return s
}

func decodeBufferObject(raw any) ([]byte, error) {
	var obj bufferObject
	switch v := raw.(type) {
	case map[string]any:
		data, _ := v["data"].([]any)
		obj.Data = make([]int, 0, len(data))
		for _, d := range data {
			n, ok := d.(float64)
			if !ok {
				return nil, fmt.Errorf("buffer data holds %T", d)
			}
			obj.Data = append(obj.Data, int(n))
		}
	default:
		if err := json.Unmarshal([]byte(asString(raw)), &obj); err != nil {
			return nil, fmt.Errorf("decode buffer object: %w", err)
		}
	}
	out := make([]byte, len(obj.Data))
	for i, n := range obj.Data {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("buffer byte %d out of range: %d", i, n)
		}
		out[i] = byte(n)
	}
	return out, nil
}

// DecodeDataURL accepts either bare base64 or a data: URL and returns the
// decoded bytes.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 || !strings.Contains(s[:i], ";base64") {
			return nil, errors.New("only base64 data URLs are supported")
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, ErrNoData
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// some clients strip the padding
		b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return b, err
}
