package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultMaxBytes bounds a single attachment read.
const DefaultMaxBytes int64 = 20 << 20

// Resolver turns attachment references into image bytes. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	maxBytes int64
}

// Option customizes the resolver.
type Option func(*Resolver)

// WithMaxBytes overrides the per-attachment size limit.
func WithMaxBytes(limit int64) Option {
	return func(r *Resolver) {
		if limit > 0 {
			r.maxBytes = limit
		}
	}
}

// NewResolver constructs a resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// candidate is the outcome of a single strategy: nil data means "not applicable".
type candidate struct {
	data     []byte
	mimeHint string
	source   string
}

type strategy func(ctx context.Context, r *Resolver, att Attachment) (candidate, error)

// strategies run in order; the first to yield bytes wins.
var strategies = []strategy{
	fromBuffer,
	fromFields,
	fromPath,
}

// Resolve produces bytes and a MIME type for one attachment. Failures are
// returned as *Error wrapping ErrUnreadable or ErrUnsupportedType so callers can
// skip the attachment and continue with the rest.
func (r *Resolver) Resolve(ctx context.Context, att Attachment) (Resolved, error) {
	label := att.Label()
	var lastErr error
	for _, try := range strategies {
		if err := ctx.Err(); err != nil {
			return Resolved{}, err
		}
		found, err := try(ctx, r, att)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Resolved{}, ctxErr
			}
			lastErr = err
			continue
		}
		if len(found.data) == 0 {
			continue
		}
		mimeType := detectMIME(att, found)
		if !strings.HasPrefix(mimeType, "image/") {
			return Resolved{}, &Error{
				Label:  label,
				Reason: fmt.Sprintf("content type %s is not supported", mimeType),
				kind:   ErrUnsupportedType,
			}
		}
		return Resolved{
			Data:     found.data,
			MIMEType: mimeType,
			Source:   found.source,
			Label:    label,
		}, nil
	}
	reason := "no content found in data, accessor fields, or file path"
	if lastErr != nil {
		reason = "all sources failed"
	}
	return Resolved{}, &Error{Label: label, Reason: reason, Err: lastErr, kind: ErrUnreadable}
}

func fromBuffer(_ context.Context, _ *Resolver, att Attachment) (candidate, error) {
	if len(att.Data) == 0 {
		return candidate{}, nil
	}
	return candidate{data: att.Data, source: "data"}, nil
}

func fromFields(_ context.Context, r *Resolver, att Attachment) (candidate, error) {
	if att.Fields == nil {
		return candidate{}, nil
	}
	var firstErr error
	for _, name := range contentFieldNames {
		value, ok := att.Fields.Lookup(name)
		if !ok || value == nil {
			continue
		}
		data, hint, err := r.valueBytes(value)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("field %s: %w", name, err)
			}
			continue
		}
		if len(data) == 0 {
			continue
		}
		return candidate{data: data, mimeHint: hint, source: name}, nil
	}
	return candidate{}, firstErr
}

func fromPath(ctx context.Context, r *Resolver, att Attachment) (candidate, error) {
	path := strings.TrimSpace(att.Path)
	source := "path"
	if path == "" {
		for _, name := range pathFieldNames {
			if p := stringField(att.Fields, []string{name}); p != "" {
				path, source = p, name
				break
			}
		}
	}
	if path == "" {
		return candidate{}, nil
	}
	data, err := r.readFile(ctx, path)
	if err != nil {
		return candidate{}, err
	}
	return candidate{data: data, source: source}, nil
}

func (r *Resolver) readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	data, err := r.readLimited(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("read %s: file is empty", path)
	}
	return data, nil
}

func (r *Resolver) readLimited(reader io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(reader, r.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("exceeds %d byte limit", r.maxBytes)
	}
	return data, nil
}

// valueBytes converts an accessor value into raw bytes. Strings are treated as
// base64 payloads, optionally wrapped in a data URI whose MIME type is returned.
func (r *Resolver) valueBytes(value any) ([]byte, string, error) {
	switch v := value.(type) {
	case []byte:
		return v, "", r.checkSize(len(v))
	case string:
		return r.decodeString(v)
	case io.Reader:
		data, err := r.readLimited(v)
		return data, "", err
	case interface{ Bytes() []byte }:
		data := v.Bytes()
		return data, "", r.checkSize(len(data))
	default:
		return nil, "", nil
	}
}

func (r *Resolver) decodeString(value string) ([]byte, string, error) {
	payload := strings.TrimSpace(value)
	if payload == "" {
		return nil, "", nil
	}
	var hint string
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		meta, body, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", errors.New("malformed data URI")
		}
		hint, _, _ = strings.Cut(meta, ";")
		payload = body
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return data, hint, r.checkSize(len(data))
}

func (r *Resolver) checkSize(n int) error {
	if int64(n) > r.maxBytes {
		return fmt.Errorf("exceeds %d byte limit", r.maxBytes)
	}
	return nil
}
