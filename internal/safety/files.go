package safety

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxExtension bounds the extension carried over from an uploaded name.
const maxExtension = 10

// StoredFilename generates the storage-side name for an upload: a UUIDv7
// (time-ordered, collision-resistant) plus the lower-cased extension of
// the user-supplied name. The original name never reaches the file system.
func StoredFilename(originalName string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate stored filename: %w", err)
	}
	return id.String() + extension(originalName), nil
}

// extension returns ".ext" for alphanumeric extensions up to maxExtension
// characters, "" otherwise.
func extension(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > maxExtension+1 {
		return ""
	}
	for _, c := range ext[1:] {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return ""
		}
	}
	return ext
}
