package codec

import "fmt"

// DecodeError is a codec violation: short read, unknown codec id, or a
// numberOfData1/numberOfData2 mismatch. It carries the byte offset at
// which the problem was found so callers can log precisely.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode error at offset %d: %s", e.Offset, e.Reason)
}

func errAt(offset int, format string, args ...any) *DecodeError {
	return &DecodeError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
