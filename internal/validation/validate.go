// Package validation checks caller input before any transfer work is
// scheduled. Bucket names, object keys, metadata and content types are
// validated against S3 rules so failures surface as INVALID_INPUT errors
// instead of service round trips.
package validation

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

const (
	maxKeyLength           = 1024
	maxMetadataKeyLength   = 128
	maxMetadataValueLength = 2048
)

var mimePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-+.]*/[a-zA-Z0-9][a-zA-Z0-9\-+.]*(\s*;.*)?$`)

// ValidateBucketName validates that a bucket name is DNS-compliant.
func ValidateBucketName(bucket string) error {
	switch {
	case bucket == "":
		return bucketError(bucket, "bucket name cannot be empty")
	case len(bucket) < 3 || len(bucket) > 63:
		return bucketError(bucket, "bucket name must be between 3 and 63 characters long")
	}

	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return bucketError(bucket, "bucket name can only contain lowercase letters, numbers, dots, and hyphens")
		}
	}

	first, last := bucket[0], bucket[len(bucket)-1]
	switch {
	case first == '-' || first == '.' || last == '-' || last == '.':
		return bucketError(bucket, "bucket name cannot start or end with a hyphen or dot")
	case isIPAddress(bucket):
		return bucketError(bucket, "bucket name cannot be formatted as an IP address")
	case strings.Contains(bucket, "..") || strings.Contains(bucket, "--"):
		return bucketError(bucket, "bucket name cannot contain two adjacent periods or hyphens")
	case bucket == "localhost":
		return bucketError(bucket, "bucket name cannot be a reserved word")
	}

	return nil
}

// ValidateObjectKey validates an object key. Keys that would escape a
// local directory when joined onto it are rejected.
func ValidateObjectKey(key string) error {
	switch {
	case key == "":
		return keyError(key, "object key cannot be empty")
	case len(key) > maxKeyLength:
		return keyError(key, fmt.Sprintf("object key cannot exceed %d bytes", maxKeyLength))
	case hasControlCharacters(key):
		return keyError(key, "object key cannot contain control characters")
	case hasPathTraversal(key):
		return keyError(key, "object key cannot contain path traversal sequences")
	}
	return nil
}

// ValidateRelativePath validates a slash-separated path derived from a
// remote key before it is joined onto a local directory.
func ValidateRelativePath(rel string) error {
	if rel == "" || rel == "." {
		return errors.NewError("validateRelativePath", errors.ErrInvalidInput).
			WithMessage("relative path cannot be empty")
	}
	if hasPathTraversal(rel) || strings.HasSuffix(rel, "/") {
		return errors.NewError("validateRelativePath", errors.ErrInvalidInput).
			WithKey(rel).
			WithMessage("relative path must stay inside the destination directory")
	}
	return nil
}

// ValidateMetadata validates user metadata keys and values.
func ValidateMetadata(metadata map[string]string) error {
	for key, value := range metadata {
		if err := validateMetadataKey(key); err != nil {
			return err
		}
		if err := validateMetadataValue(value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateContentType validates a MIME type. An empty value is allowed.
func ValidateContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	if !mimePattern.MatchString(contentType) {
		return errors.NewError("validateContentType", errors.ErrInvalidInput).
			WithMessage("content type must be a valid MIME type")
	}
	return nil
}

func bucketError(bucket, msg string) error {
	return errors.NewError("validateBucketName", errors.ErrInvalidInput).
		WithBucket(bucket).
		WithMessage(msg)
}

func keyError(key, msg string) error {
	return errors.NewError("validateObjectKey", errors.ErrInvalidInput).
		WithKey(key).
		WithMessage(msg)
}

func isValidBucketChar(char rune) bool {
	return (char >= '0' && char <= '9') || (char >= 'a' && char <= 'z') || char == '.' || char == '-'
}

// isIPAddress reports whether s looks like a dotted IPv4 address.
func isIPAddress(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}

	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		num := 0
		for _, char := range part {
			if char < '0' || char > '9' {
				return false
			}
			num = num*10 + int(char-'0')
		}
		if num > 255 {
			return false
		}
	}
	return true
}

func hasPathTraversal(key string) bool {
	for _, segment := range strings.Split(strings.ReplaceAll(key, `\`, "/"), "/") {
		if segment == ".." {
			return true
		}
	}

	cleaned := path.Clean(strings.ReplaceAll(key, `\`, "/"))
	if strings.HasPrefix(cleaned, "/") {
		return true
	}

	// Windows drive letters
	return len(cleaned) >= 2 && cleaned[1] == ':' && unicode.IsLetter(rune(cleaned[0]))
}

func hasControlCharacters(key string) bool {
	return strings.IndexFunc(key, unicode.IsControl) >= 0
}

func validateMetadataKey(key string) error {
	if key == "" {
		return errors.NewError("validateMetadata", errors.ErrInvalidInput).
			WithMessage("metadata key cannot be empty")
	}
	if len(key) > maxMetadataKeyLength {
		return errors.NewError("validateMetadata", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("metadata key cannot exceed %d characters", maxMetadataKeyLength))
	}

	lower := strings.ToLower(key)
	for _, prefix := range []string{"aws:", "x-amz-", "x-amz:"} {
		if strings.HasPrefix(lower, prefix) {
			return errors.NewError("validateMetadata", errors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("metadata key cannot start with reserved prefix: %s", prefix))
		}
	}

	for _, char := range key {
		if char <= ' ' || char > '~' {
			return errors.NewError("validateMetadata", errors.ErrInvalidInput).
				WithMessage("metadata key can only contain printable ASCII characters")
		}
	}
	return nil
}

func validateMetadataValue(value string) error {
	if len(value) > maxMetadataValueLength {
		return errors.NewError("validateMetadata", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("metadata value cannot exceed %d characters", maxMetadataValueLength))
	}
	for _, char := range value {
		if !unicode.IsPrint(char) && char != '\t' {
			return errors.NewError("validateMetadata", errors.ErrInvalidInput).
				WithMessage("metadata value can only contain printable characters")
		}
	}
	return nil
}
