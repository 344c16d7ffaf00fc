package attachment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnreadable reports that no resolution strategy produced bytes.
	ErrUnreadable = errors.New("attachment unreadable")
	// ErrUnsupportedType reports bytes whose MIME type is not an image.
	ErrUnsupportedType = errors.New("attachment is not an image")
)

// DefaultMIMEType is used when no other source determines the content type.
const DefaultMIMEType = "image/jpeg"

// contentFieldNames lists the accessor names probed for inline bytes, in order.
var contentFieldNames = []string{
	"content",
	"data",
	"binary_data",
	"bytes",
	"file_content",
	"image_data",
	"payload",
}

var (
	pathFieldNames     = []string{"file_path", "path"}
	mimeFieldNames     = []string{"content_type", "mime_type", "type"}
	filenameFieldNames = []string{"filename", "name"}
)

// Fields exposes named accessors on a caller-supplied attachment object.
// Lookup returns the value and whether the accessor exists.
type Fields interface {
	Lookup(name string) (any, bool)
}

// Map adapts a decoded JSON object (or any string-keyed map) to Fields.
type Map map[string]any

// Lookup implements Fields.
func (m Map) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Attachment references image content that is resolved to bytes at dispatch time.
type Attachment struct {
	// Data holds bytes that are already in memory.
	Data []byte
	// Fields is an arbitrary object probed by accessor name.
	Fields Fields
	// Path is a filesystem path read when no inline bytes are present.
	Path string
	// MIMEType overrides content type detection.
	MIMEType string
	// Name is a display or file name used for logging and extension lookup.
	Name string
}

// Label returns a short human-readable identifier for logs.
func (a Attachment) Label() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	if path := strings.TrimSpace(a.Path); path != "" {
		return path
	}
	if name := stringField(a.Fields, filenameFieldNames); name != "" {
		return name
	}
	if path := stringField(a.Fields, pathFieldNames); path != "" {
		return path
	}
	if len(a.Data) > 0 {
		return fmt.Sprintf("inline(%d bytes)", len(a.Data))
	}
	return "attachment"
}

// Resolved is an attachment turned into bytes plus a MIME type.
type Resolved struct {
	Data     []byte
	MIMEType string
	// Source names the strategy that produced the bytes.
	Source string
	Label  string
}

// Error describes why a single attachment could not be resolved.
type Error struct {
	Label  string
	Reason string
	Err    error
	kind   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.kind, e.Label, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.Err}
}

func stringField(fields Fields, names []string) string {
	if fields == nil {
		return ""
	}
	for _, name := range names {
		v, ok := fields.Lookup(name)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
