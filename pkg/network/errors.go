package network

import (
	"errors"

	"github.com/ZentaChain/zentalk-voice/pkg/session"
)

var (
	// ErrDatagramTooLarge is returned when a voice message does not fit in
	// one datagram
	ErrDatagramTooLarge = session.ErrDatagramTooLarge
	ErrServerClosed     = errors.New("server closed")
	ErrNotConnected     = errors.New("not connected")
	ErrHandshakeFailed  = errors.New("handshake failed")
)
