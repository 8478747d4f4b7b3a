package codec

import "errors"

// Decode failure modes named by the spec. Transport/codec errors are always
// non-fatal: the caller logs and drops the offending datagram rather than
// tearing down the session.
var (
	ErrDecryptionFailed = errors.New("codec: decryption failed")
	ErrTruncated        = errors.New("codec: truncated frame")
	ErrUnknownHeader    = errors.New("codec: unknown header tag")
	ErrUnknownCommand   = errors.New("codec: unknown command tag")
	ErrBodyOverflow     = errors.New("codec: frame body exceeds capacity")
	ErrTooManyHeaders   = errors.New("codec: too many headers")
	ErrBufferTooLarge   = errors.New("codec: buffer exceeds max length")
)
