package domain

import "errors"

var (
	ErrDeviceUnavailable     = errors.New("capture device unavailable")
	ErrConstraintApplication = errors.New("constraint application failed")
	ErrTransportOpenFailed   = errors.New("transport open failed")
	ErrTrackEnded            = errors.New("track ended unexpectedly")
	ErrReconnectExhausted    = errors.New("reconnect attempts exhausted")
	ErrCaptureClosed         = errors.New("capture controller closed")
	ErrPeerNotFound          = errors.New("peer not found")
	ErrPeerExists            = errors.New("peer already registered")
	ErrRegistryClosed        = errors.New("peer registry disconnected")
	ErrNotMovable            = errors.New("participant is not movable")
	ErrWrongLayoutMode       = errors.New("operation not allowed in current layout mode")
)
