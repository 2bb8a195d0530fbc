package errors

import (
	"context"
	"errors"
	"io/fs"
	"net"

	"github.com/aws/smithy-go"
)

// Classify maps err onto a Kind.
//
// An *Error keeps the kind it was built with. Otherwise sentinel errors, context
// errors, smithy API error codes, net.Error values and file system path errors
// are inspected in that order.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var te *Error
	if errors.As(err, &te) && te.Kind != "" {
		return te.Kind
	}

	switch {
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrPaused):
		return KindPaused
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrTooManyParts):
		return KindInvalidInput
	case errors.Is(err, ErrObjectNotFound):
		return KindNotFound
	case errors.Is(err, ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return classifyCode(apiErr.ErrorCode())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return KindStorage
	}

	return KindUnknown
}

func classifyCode(code string) Kind {
	switch code {
	case "NoSuchKey", "NotFound", "NoSuchBucket", "NoSuchUpload":
		return KindNotFound
	case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		return KindAccessDenied
	case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests",
		"TooManyRequestsException":
		return KindThrottled
	case "RequestTimeout":
		return KindTimeout
	case "InternalError", "ServiceUnavailable", "503", "500":
		return KindUnavailable
	case "InvalidArgument", "InvalidRequest", "EntityTooSmall", "EntityTooLarge", "InvalidPart",
		"InvalidPartOrder", "InvalidRange", "InvalidBucketName":
		return KindInvalidInput
	default:
		return KindUnknown
	}
}
