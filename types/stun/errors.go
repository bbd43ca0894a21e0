package stun

import "errors"

var (
	ErrNotSTUN            = errors.New("packet is not a STUN packet")
	ErrNotSuccessResponse = errors.New("STUN packet is not a success response")
	ErrMalformedAttrs     = errors.New("STUN packet has malformed attributes")
	ErrNotBindingRequest  = errors.New("STUN request not a binding request")
	ErrWrongSoftware      = errors.New("STUN request came from foreign software")
	ErrNoFingerprint      = errors.New("STUN request didn't end in fingerprint")
	ErrWrongFingerprint   = errors.New("STUN request had bogus fingerprint")
	ErrNoResponse         = errors.New("no STUN response before deadline")
)
