package stun

import (
	crand "crypto/rand"
	"encoding/binary"
	"net/netip"
)

// TxID is a transaction ID.
type TxID [12]byte

// NewTxID returns a new random TxID.
func NewTxID() TxID {
	var tx TxID
	if _, err := crand.Read(tx[:]); err != nil {
		// We expect the randomizer to be available here
		panic(err)
	}
	return tx
}

// Request generates a binding request STUN packet, carrying a SOFTWARE and FINGERPRINT attribute.
func Request(tID TxID) []byte {
	softwarePadded := (len(thisSoftware) + 3) &^ 3
	attrsLen := 4 + softwarePadded + lenFingerprint

	b := make([]byte, 0, headerLen+attrsLen)

	// STUN header, RFC5389 Section 6.
	b = append(b, bindingRequest...)
	b = appendU16(b, uint16(attrsLen))
	b = append(b, magicCookie...)
	b = append(b, tID[:]...)

	// Attribute SOFTWARE, RFC5389 Section 15.10, padded to a 4 byte boundary.
	b = appendU16(b, attrNumSoftware)
	b = appendU16(b, uint16(len(thisSoftware)))
	b = append(b, thisSoftware...)
	b = append(b, make([]byte, softwarePadded-len(thisSoftware))...)

	// Attribute FINGERPRINT, RFC5389 Section 15.5.
	fp := fingerPrint(b)
	b = appendU16(b, attrNumFingerprint)
	b = appendU16(b, 4)
	b = appendU32(b, fp)

	return b
}

// Response generates a binding success response with a single XOR-MAPPED-ADDRESS attribute.
//
// Returns nil if addrPort does not hold a valid address.
func Response(txID TxID, addrPort netip.AddrPort) []byte {
	addr := addrPort.Addr()

	var fam byte
	switch {
	case addr.Is4():
		fam = 0x01
	case addr.Is6():
		fam = 0x02
	default:
		return nil
	}

	addrLen := addr.BitLen() / 8
	attrsLen := 8 + addrLen
	b := make([]byte, 0, headerLen+attrsLen)

	b = append(b, 0x01, 0x01) // binding success
	b = appendU16(b, uint16(attrsLen))
	b = append(b, magicCookie...)
	b = append(b, txID[:]...)

	b = appendU16(b, attrXorMappedAddress)
	b = appendU16(b, uint16(4+addrLen))
	b = append(b, 0, fam)
	b = appendU16(b, addrPort.Port()^0x2112) // first half of magicCookie

	ipa := addr.As16()
	for i, o := range ipa[16-addrLen:] {
		if i < len(magicCookie) {
			b = append(b, o^magicCookie[i])
		} else {
			b = append(b, o^txID[i-len(magicCookie)])
		}
	}

	return b
}

// ParseResponse parses a successful binding response STUN packet.
//
// The address reported by XOR-MAPPED-ADDRESS is canonical, MAPPED-ADDRESS is only used
// when a server does not send the former.
func ParseResponse(b []byte) (tID TxID, addr netip.AddrPort, err error) {
	if !Is(b) {
		return tID, netip.AddrPort{}, ErrNotSTUN
	}
	copy(tID[:], b[8:8+len(tID)])
	if b[0] != 0x01 || b[1] != 0x01 {
		return tID, netip.AddrPort{}, ErrNotSuccessResponse
	}

	attrsLen := int(binary.BigEndian.Uint16(b[2:4]))
	b = b[headerLen:]
	if attrsLen > len(b) {
		return tID, netip.AddrPort{}, ErrMalformedAttrs
	} else if len(b) > attrsLen {
		b = b[:attrsLen] // trim trailing packet bytes
	}

	var fallbackAddr netip.AddrPort

	if err := foreachAttr(b, func(attrType uint16, attr []byte) error {
		switch attrType {
		case attrXorMappedAddress, attrXorMappedAddressAlt:
			ipSlice, port, err := xorMappedAddress(tID, attr)
			if err != nil {
				return err
			}
			if ip, ok := netip.AddrFromSlice(ipSlice); ok {
				addr = netip.AddrPortFrom(ip.Unmap(), port)
			}
		case attrMappedAddress:
			ipSlice, port, err := mappedAddress(attr)
			if err != nil {
				return ErrMalformedAttrs
			}
			if ip, ok := netip.AddrFromSlice(ipSlice); ok {
				fallbackAddr = netip.AddrPortFrom(ip.Unmap(), port)
			}
		}
		return nil
	}); err != nil {
		return TxID{}, netip.AddrPort{}, err
	}

	switch {
	case addr.IsValid():
		return tID, addr, nil
	case fallbackAddr.IsValid():
		return tID, fallbackAddr, nil
	default:
		return tID, netip.AddrPort{}, ErrMalformedAttrs
	}
}
