package protocol

import "fmt"

// FramingCode identifies the kind of framing failure for one wire line.
type FramingCode uint8

const (
	FramingEmptyLine    FramingCode = 0x01 // Line contained no token
	FramingLineTooLong  FramingCode = 0x02 // Token exceeds MaxLineLength
	FramingBadAlphabet  FramingCode = 0x03 // Token is not valid base64
	FramingTruncated    FramingCode = 0x04 // Binary frame ended early
	FramingTrailingData FramingCode = 0x05 // Bytes left after the frame
	FramingNonceTooLong FramingCode = 0x06 // Nonce exceeds MaxNonceLength
)

// String returns the string representation of the framing code.
func (fc FramingCode) String() string {
	switch fc {
	case FramingEmptyLine:
		return "EmptyLine"
	case FramingLineTooLong:
		return "LineTooLong"
	case FramingBadAlphabet:
		return "BadAlphabet"
	case FramingTruncated:
		return "Truncated"
	case FramingTrailingData:
		return "TrailingData"
	case FramingNonceTooLong:
		return "NonceTooLong"
	default:
		return "Unknown"
	}
}

// FramingError reports a malformed wire line. The decoder that produced
// it has already advanced past the offending line; the error is a record
// of the discard, never a reason to stop the stream.
type FramingError struct {
	Code FramingCode
	Err  error // Underlying cause, may be nil
}

// Error returns the error message.
func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: framing %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("protocol: framing %s", e.Code)
}

// Unwrap returns the underlying cause.
func (e *FramingError) Unwrap() error {
	return e.Err
}

// newFramingError creates a FramingError with the given code and cause.
func newFramingError(code FramingCode, err error) *FramingError {
	return &FramingError{Code: code, Err: err}
}
