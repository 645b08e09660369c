package channel

import "errors"

var (
	// ErrReadTimeout is returned by a Link when no frame arrived within its read timeout.
	// It is not a failure; Receive reports it as "no packet".
	ErrReadTimeout = errors.New("read timed out")

	ErrNoMac              = errors.New("interface has no MAC address")
	ErrUnknownChannelType = errors.New("unknown channel type, only ethernet is supported")
	ErrChannelGetting     = errors.New("error getting channel, might be missing permissions")
	ErrMessageTooLong     = errors.New("message too long to send")
	ErrARPSerializeFailed = errors.New("couldn't serialize ARP packet")
	ErrARPSendFailed      = errors.New("couldn't send ARP packet")
	ErrCaptureFailed      = errors.New("couldn't capture packet")
)
