package archive

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrFetchFailed matches every failure to download an archive.
	ErrFetchFailed = errors.New("archive fetch failed")
	// ErrExpired matches downloads rejected with HTTP 403, which for signed
	// URLs almost always means the signature has expired.
	ErrExpired = errors.New("signed URL may have expired")
	// ErrExtractionFailed matches malformed archives and scratch file errors.
	ErrExtractionFailed = errors.New("archive extraction failed")
)

// FetchError describes a failed archive download.
type FetchError struct {
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	var msg string
	switch {
	case e.StatusCode == http.StatusForbidden:
		msg = fmt.Sprintf("failed to download archive: HTTP %d - %s, generate a new signed URL", e.StatusCode, ErrExpired)
	case e.StatusCode != 0:
		msg = fmt.Sprintf("failed to download archive: HTTP %d - %s", e.StatusCode, e.Message)
	default:
		msg = fmt.Sprintf("failed to download archive: %s", e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Is reports ErrFetchFailed for every fetch error and ErrExpired for 403s.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrFetchFailed:
		return true
	case ErrExpired:
		return e.StatusCode == http.StatusForbidden
	default:
		return false
	}
}

// ExtractionError describes a failure while unpacking a downloaded archive.
type ExtractionError struct {
	Op    string
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExtractionFailed, e.Op, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtractionFailed }
