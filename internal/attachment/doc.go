// Package attachment resolves caller-supplied attachment references into image
// bytes and a MIME type.
//
// Resolution tries a fixed, ordered list of strategies and stops at the first
// that yields bytes: an in-memory buffer, a lookup over well-known accessor
// names on an arbitrary object (content, data, binary_data, bytes,
// file_content, image_data, payload), and finally a filesystem path. A failed
// attachment is reported as an *Error wrapping ErrUnreadable (or
// ErrUnsupportedType for non-image content); it never affects other
// attachments in the same request.
package attachment
