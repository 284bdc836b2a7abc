package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// libraryNameRegex matches "owner.name" library identifiers as used for
// recipe directory names.
var libraryNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*\.[A-Za-z0-9][A-Za-z0-9._+-]*$`)

// ValidateLibraryName validates a fully qualified library name.
//
// Library names become directory components of the build and install
// trees, so the rules reject anything that could escape those roots:
//   - No empty names
//   - No control characters
//   - No path separators or traversal sequences
//   - Must be of the form owner.name
func ValidateLibraryName(name string) error {
	if name == "" {
		return New(ErrCodeConfiguration, "library name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeConfiguration, "library name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeConfiguration, "library name contains invalid control characters")
		}
	}

	for _, pattern := range []string{"..", "/", "\\"} {
		if strings.Contains(name, pattern) {
			return New(ErrCodeConfiguration, "library name contains invalid characters: %q", pattern)
		}
	}

	if !libraryNameRegex.MatchString(name) {
		return New(ErrCodeConfiguration, "library name must be of the form owner.name: %q", name)
	}

	return nil
}

// ValidatePath validates a relative path taken from untrusted input, such as
// an archive entry or a patch header, before it is joined onto a root.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 1024 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No ".." path elements
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 1024
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	for _, elem := range strings.Split(path, "/") {
		if elem == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateURL validates a download URL.
// It ensures the URL has a scheme the blob cache can fetch.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeConfiguration, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeConfiguration, "URL must use http or https scheme: %q", rawURL)
	}

	return nil
}
