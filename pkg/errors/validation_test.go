package errors

import (
	"strings"
	"testing"
)

func TestValidateLibraryName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "madler.zlib", false},
		{"valid with dash", "libjpeg-turbo.libjpeg-turbo", false},
		{"valid with dots in name", "AcademySoftwareFoundation.open.exr", false},
		{"valid underscore", "protocolbuffers.utf8_range", false},

		{"empty", "", true},
		{"no owner", "zlib", true},
		{"traversal", "madler..zlib", true},
		{"slash", "madler/zlib", true},
		{"backslash", "madler\\zlib", true},
		{"control", "madler.zl\x01ib", true},
		{"too long", "a." + strings.Repeat("b", 300), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLibraryName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLibraryName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"https://github.com/madler/zlib/archive/refs/tags/v1.3.1.zip", false},
		{"http://example.com/a.tar.gz", false},
		{"", true},
		{"ftp://example.com/a.zip", true},
		{"file:///etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "src/zlib.c", false},
		{"valid nested", "zlib-1.3.1/contrib/minizip/zip.c", false},
		{"valid filename only", "CMakeLists.txt", false},
		{"valid with dots", "v1.2.3/..config", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 1100), true},
		{"absolute path", "/etc/passwd", true},
		{"path traversal", "../../../etc/passwd", true},
		{"path traversal middle", "foo/../bar", true},
		{"null byte", "foo\x00bar", true},
		{"backslash", "foo\\bar", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidPath) {
				t.Errorf("ValidatePath(%q) returned wrong error code: %v", tt.input, err)
			}
		})
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	codes := []Code{
		ErrCodeConfiguration,
		ErrCodeInvalidPath,
		ErrCodeRecipeNotFound,
		ErrCodeRecipeConflict,
		ErrCodeDependencyNotFound,
		ErrCodeDependencyOptionConflict,
		ErrCodeNoAvailableVersion,
		ErrCodeUnresolved,
		ErrCodeStaleConfiguration,
		ErrCodeSignatureMismatch,
		ErrCodeExternalToolFailure,
		ErrCodeIO,
		ErrCodeInternal,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %s", code)
		}
		seen[code] = true
	}
}
