package storage

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	ErrInvalidConfig      = errors.New("storage: invalid configuration")
	ErrNotFound           = errors.New("storage: object not found")
	ErrAccessDenied       = errors.New("storage: access denied")
	ErrAttachmentTooLarge = errors.New("storage: object exceeds attachment size limit")
	ErrUploadFailed       = errors.New("storage: upload failed")
	ErrPresignFailed      = errors.New("storage: presign failed")
)

// wrapS3Error maps S3 failures onto the sentinels above. The AWS error is
// formatted with %v so callers match sentinels only.
func wrapS3Error(err error, fallback error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
	}

	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	return fmt.Errorf("%w: %v", fallback, err)
}
