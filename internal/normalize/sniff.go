package normalize

import (
	"bytes"
	"fmt"
	"io"
	"sort"
)

// SniffMIME identifies an image payload by its leading bytes. Returns ""
// for anything it does not recognize.
func SniffMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("\xff\xd8\xff")):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return ""
	}
}

// Fingerprint describes a response shape for logs and errors without
// leaking payload content.
func Fingerprint(v any) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		prefix := t
		if len(prefix) > 16 {
			prefix = prefix[:16]
		}
		return fmt.Sprintf("string(len=%d, prefix=%q)", len(t), prefix)
	case []byte:
		return fmt.Sprintf("bytes(len=%d)", len(t))
	case io.Reader:
		return "stream"
	case []any:
		return fmt.Sprintf("sequence(len=%d)", len(t))
	case []string:
		return fmt.Sprintf("sequence(len=%d)", len(t))
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("mapping(keys=%v)", keys)
	default:
		return fmt.Sprintf("%T", v)
	}
}
