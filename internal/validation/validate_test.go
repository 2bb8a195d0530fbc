package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

func TestValidateBucketName(t *testing.T) {
	tests := []struct {
		name   string
		bucket string
		errMsg string
	}{
		{"valid_simple", "my-bucket", ""},
		{"valid_with_numbers", "my-bucket123", ""},
		{"valid_with_dots", "my.bucket", ""},
		{"valid_leading_digit", "1bucket", ""},
		{"valid_min_length", "abc", ""},
		{"valid_max_length", strings.Repeat("a", 63), ""},

		{"empty", "", "bucket name cannot be empty"},
		{"too_short", "ab", "between 3 and 63 characters"},
		{"too_long", strings.Repeat("a", 64), "between 3 and 63 characters"},
		{"starts_with_hyphen", "-bucket", "cannot start or end with a hyphen or dot"},
		{"ends_with_dot", "bucket.", "cannot start or end with a hyphen or dot"},
		{"uppercase", "MyBucket", "lowercase letters, numbers, dots, and hyphens"},
		{"underscore", "my_bucket", "lowercase letters, numbers, dots, and hyphens"},
		{"ip_address", "192.168.1.1", "formatted as an IP address"},
		{"adjacent_dots", "my..bucket", "two adjacent periods or hyphens"},
		{"adjacent_hyphens", "my--bucket", "two adjacent periods or hyphens"},
		{"reserved", "localhost", "reserved word"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucketName(tt.bucket)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.True(t, errors.IsInvalidInput(err))
		})
	}
}

func TestValidateObjectKey(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		errMsg string
	}{
		{"simple", "file.txt", ""},
		{"nested", "dir/sub/file.txt", ""},
		{"dots_inside_name", "archive..tar", ""},
		{"unicode", "données/été.csv", ""},
		{"max_length", strings.Repeat("k", 1024), ""},

		{"empty", "", "cannot be empty"},
		{"too_long", strings.Repeat("k", 1025), "cannot exceed 1024 bytes"},
		{"parent_prefix", "../etc/passwd", "path traversal"},
		{"parent_inside", "a/../../b", "path traversal"},
		{"backslash_parent", `a\..\b`, "path traversal"},
		{"absolute", "/etc/passwd", "path traversal"},
		{"drive_letter", "C:/windows", "path traversal"},
		{"control_char", "file\x00.txt", "control characters"},
		{"newline", "file\n.txt", "control characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectKey(tt.key)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
		})
	}
}

func TestValidateRelativePath(t *testing.T) {
	tests := []struct {
		name    string
		rel     string
		wantErr bool
	}{
		{"file", "a.txt", false},
		{"nested", "a/b/c.txt", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"escape", "../a.txt", true},
		{"absolute", "/a.txt", true},
		{"directory_marker", "dir/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRelativePath(tt.rel)
			if tt.wantErr {
				assert.True(t, errors.IsInvalidInput(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		errMsg   string
	}{
		{"nil", nil, ""},
		{"valid", map[string]string{"author": "jane", "note": "line\twith tab"}, ""},
		{"empty_key", map[string]string{"": "v"}, "metadata key cannot be empty"},
		{"long_key", map[string]string{strings.Repeat("k", 129): "v"}, "cannot exceed 128"},
		{"reserved_prefix", map[string]string{"X-Amz-Meta": "v"}, "reserved prefix: x-amz-"},
		{"space_in_key", map[string]string{"my key": "v"}, "printable ASCII"},
		{"long_value", map[string]string{"k": strings.Repeat("v", 2049)}, "cannot exceed 2048"},
		{"control_value", map[string]string{"k": "a\x01b"}, "printable characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetadata(tt.metadata)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		wantErr     bool
	}{
		{"", false},
		{"text/plain", false},
		{"application/json; charset=utf-8", false},
		{"application/vnd.api+json", false},
		{"text", true},
		{"/plain", true},
		{"text/<script>", true},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			err := ValidateContentType(tt.contentType)
			if tt.wantErr {
				assert.True(t, errors.IsInvalidInput(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
