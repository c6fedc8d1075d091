package blobstore

import (
	"strings"

	"github.com/google/uuid"
)

// UploadKey builds prefix/<uuid>/<sanitized file name>
func UploadKey(prefix, fileName string) string {
	return strings.TrimRight(prefix, "/") + "/" + uuid.New().String() + "/" + SanitizeFileName(fileName)
}

// ResultKey builds prefix/<jobID>-result.json. The key is stable per job so a
// redelivered job overwrites its own result instead of creating another.
func ResultKey(prefix, jobID string) string {
	return strings.TrimRight(prefix, "/") + "/" + jobID + "-result.json"
}

// SanitizeFileName replaces anything outside [A-Za-z0-9._-] with '_'
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "upload"
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	if strings.Trim(out, ".") == "" {
		return "upload"
	}
	return out
}
