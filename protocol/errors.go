package protocol

import "errors"

var (
	ErrShortFrame      = errors.New("protocol: frame shorter than header")
	ErrSizeMismatch    = errors.New("protocol: size field exceeds buffer")
	ErrBadSize         = errors.New("protocol: size field too small for frame type")
	ErrUnknownType     = errors.New("protocol: unknown message type")
	ErrWrongType       = errors.New("protocol: unexpected message type")
	ErrEmptyPayload    = errors.New("protocol: empty payload")
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
	ErrBufferTooSmall  = errors.New("protocol: buffer too small")
	ErrNoUnitID        = errors.New("protocol: empty hardware identifier")
	ErrReservedUnitID  = errors.New("protocol: hardware identifier folds to the broadcast address")
)
