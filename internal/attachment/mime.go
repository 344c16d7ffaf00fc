package attachment

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".heic": "image/heic",
}

var mimeAliases = map[string]string{
	"image/jpg":   "image/jpeg",
	"image/pjpeg": "image/jpeg",
	"image/x-png": "image/png",
}

// detectMIME picks the content type: explicit override, accessor fields, data
// URI hint, file extension, content sniffing, then DefaultMIMEType.
func detectMIME(att Attachment, found candidate) string {
	if mt := normalizeMIME(att.MIMEType); mt != "" {
		return mt
	}
	if att.Fields != nil {
		for _, name := range mimeFieldNames {
			// "type" is sometimes a coarse kind ("image"); only accept full MIME types.
			if mt := normalizeMIME(stringField(att.Fields, []string{name})); strings.Contains(mt, "/") {
				return mt
			}
		}
	}
	if mt := normalizeMIME(found.mimeHint); mt != "" {
		return mt
	}
	for _, name := range []string{att.Name, att.Path, stringField(att.Fields, filenameFieldNames), stringField(att.Fields, pathFieldNames)} {
		if mt := typeByExtension(name); mt != "" {
			return mt
		}
	}
	if sniffed := normalizeMIME(http.DetectContentType(found.data)); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return DefaultMIMEType
}

func typeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	if ext == "" {
		return ""
	}
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	return normalizeMIME(mime.TypeByExtension(ext))
}

func normalizeMIME(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(value); err == nil {
		value = parsed
	}
	value = strings.ToLower(value)
	if alias, ok := mimeAliases[value]; ok {
		return alias
	}
	return value
}
