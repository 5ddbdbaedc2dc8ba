package whatsapp

import "errors"

var (
	ErrNotPaired         = errors.New("whatsapp device is not paired; run the login command first")
	ErrClientUnavailable = errors.New("whatsapp client not available")
	ErrConnectTimeout    = errors.New("timed out waiting for whatsapp connection")
	ErrLoginTimeout      = errors.New("qr code expired before it was scanned")
	ErrInvalidJID        = errors.New("invalid jid")
)
