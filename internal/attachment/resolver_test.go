package attachment

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestResolvePrefersInMemoryBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.png")
	if err := os.WriteFile(path, []byte("from disk"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := NewResolver().Resolve(context.Background(), Attachment{
		Data:   []byte("in memory"),
		Fields: Map{"content": []byte("from field")},
		Path:   path,
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if string(got.Data) != "in memory" || got.Source != "data" {
		t.Fatalf("unexpected resolution %q from %s", got.Data, got.Source)
	}
	if got.MIMEType != "image/png" {
		t.Fatalf("expected extension-derived MIME type, got %q", got.MIMEType)
	}
}

func TestResolveFieldOrder(t *testing.T) {
	fields := Map{
		"content":    nil,
		"data":       []byte{},
		"bytes":      []byte("third choice"),
		"payload":    []byte("last choice"),
		"mime_type":  "image/webp",
		"irrelevant": 42,
	}
	got, err := NewResolver().Resolve(context.Background(), Attachment{Fields: fields})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if string(got.Data) != "third choice" || got.Source != "bytes" {
		t.Fatalf("expected first non-empty field, got %q from %s", got.Data, got.Source)
	}
	if got.MIMEType != "image/webp" {
		t.Fatalf("unexpected MIME type %q", got.MIMEType)
	}
}

func TestResolveSkipsUndecodableFieldForLaterOne(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0}
	got, err := NewResolver().Resolve(context.Background(), Attachment{Fields: Map{
		"content": "not base64!!",
		"data":    jpeg,
	}})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !bytes.Equal(got.Data, jpeg) || got.Source != "data" {
		t.Fatalf("expected bytes from the data field, got %q from %s", got.Data, got.Source)
	}

	_, err = NewResolver().Resolve(context.Background(), Attachment{Fields: Map{"content": "not base64!!"}})
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable when no field decodes, got %v", err)
	}
}

func TestResolveFieldDataURI(t *testing.T) {
	uri := "data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("gif-bytes"))
	got, err := NewResolver().Resolve(context.Background(), Attachment{Fields: Map{"image_data": uri}})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if string(got.Data) != "gif-bytes" {
		t.Fatalf("unexpected data %q", got.Data)
	}
	if got.MIMEType != "image/gif" {
		t.Fatalf("expected data URI MIME type, got %q", got.MIMEType)
	}
}

func TestResolveFieldReader(t *testing.T) {
	got, err := NewResolver().Resolve(context.Background(), Attachment{
		Fields: Map{"file_content": bytes.NewReader(pngHeader)},
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got.MIMEType != "image/png" {
		t.Fatalf("expected sniffed png, got %q", got.MIMEType)
	}
}

func TestResolveFilePathFromField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "camera.jpeg")
	if err := os.WriteFile(path, []byte("jpeg bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err := NewResolver().Resolve(context.Background(), Attachment{Fields: Map{"file_path": path}})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if string(got.Data) != "jpeg bytes" || got.Source != "file_path" {
		t.Fatalf("unexpected resolution %q from %s", got.Data, got.Source)
	}
	if got.MIMEType != "image/jpeg" {
		t.Fatalf("unexpected MIME type %q", got.MIMEType)
	}
}

func TestResolveDefaultsToJPEG(t *testing.T) {
	got, err := NewResolver().Resolve(context.Background(), Attachment{Data: []byte("opaque")})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got.MIMEType != DefaultMIMEType {
		t.Fatalf("expected default MIME type, got %q", got.MIMEType)
	}
}

func TestResolveMissingFileIsUnreadable(t *testing.T) {
	_, err := NewResolver().Resolve(context.Background(), Attachment{Path: filepath.Join(t.TempDir(), "missing.jpg")})
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected underlying not-exist error, got %v", err)
	}
	var attErr *Error
	if !errors.As(err, &attErr) || attErr.Label == "" {
		t.Fatalf("expected labelled *Error, got %v", err)
	}
}

func TestResolveUnknownShapeIsUnreadable(t *testing.T) {
	_, err := NewResolver().Resolve(context.Background(), Attachment{Fields: Map{"url": "http://camera/snapshot"}})
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable, got %v", err)
	}
}

func TestResolveRejectsNonImage(t *testing.T) {
	_, err := NewResolver().Resolve(context.Background(), Attachment{Data: []byte("hello"), MIMEType: "text/plain"})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestResolveEnforcesSizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.jpg")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 64), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_, err := NewResolver(WithMaxBytes(16)).Resolve(context.Background(), Attachment{Path: path})
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable for oversized file, got %v", err)
	}
}

func TestResolveHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResolver().Resolve(ctx, Attachment{Data: []byte("x")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNormalizeMIMEAliases(t *testing.T) {
	cases := map[string]string{
		"image/jpg":                "image/jpeg",
		"IMAGE/PNG; charset=utf-8": "image/png",
		"":                         "",
	}
	for input, want := range cases {
		if got := normalizeMIME(input); got != want {
			t.Fatalf("normalizeMIME(%q)=%q want %q", input, got, want)
		}
	}
}
