package radio

import "errors"

var (
	ErrNotOpen         = errors.New("radio: transport not open")
	ErrBusy            = errors.New("radio: operation in progress")
	ErrFrameTooLarge   = errors.New("radio: frame too large")
	ErrInvalidBaudrate = errors.New("radio: unsupported baud rate")
	ErrInvalidBand     = errors.New("radio: unknown frequency band")
	ErrInvalidChannel  = errors.New("radio: channel not available")
	ErrNoChannels      = errors.New("radio: band has no channels at this baud rate")
)
