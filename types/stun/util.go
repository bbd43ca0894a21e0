package stun

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"net"
)

// foreachAttr walks the (padded) TLV attributes in b, handing fn the unpadded value of each.
func foreachAttr(b []byte, fn func(attrType uint16, a []byte) error) error {
	for len(b) > 0 {
		if len(b) < 4 {
			return ErrMalformedAttrs
		}

		attrType := binary.BigEndian.Uint16(b[:2])
		attrLen := int(binary.BigEndian.Uint16(b[2:4]))
		padded := (attrLen + 3) &^ 3

		b = b[4:]
		if padded > len(b) {
			return ErrMalformedAttrs
		}
		if err := fn(attrType, b[:attrLen]); err != nil {
			return err
		}
		b = b[padded:]
	}
	return nil
}

func fingerPrint(b []byte) uint32 { return crc32.ChecksumIEEE(b) ^ 0x5354554e }

func appendU16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

func appendU32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

// xorMappedAddress decodes a XOR-MAPPED-ADDRESS attribute, RFC5389 Section 15.2
func xorMappedAddress(tID TxID, b []byte) (addr []byte, port uint16, err error) {
	addrField, port, err := addressField(b)
	if err != nil {
		return nil, 0, err
	}
	port ^= 0x2112 // first half of magicCookie

	addr = make([]byte, len(addrField))
	for i, x := range addrField {
		if i < len(magicCookie) {
			addr[i] = x ^ magicCookie[i]
		} else {
			addr[i] = x ^ tID[i-len(magicCookie)]
		}
	}
	return addr, port, nil
}

// mappedAddress decodes a MAPPED-ADDRESS attribute, RFC5389 Section 15.1
func mappedAddress(b []byte) (addr []byte, port uint16, err error) {
	addrField, port, err := addressField(b)
	if err != nil {
		return nil, 0, err
	}
	return bytes.Clone(addrField), port, nil
}

// addressField splits the common (reserved, family, port, address) layout of both address attributes.
func addressField(b []byte) (addrField []byte, port uint16, err error) {
	if len(b) < 4 {
		return nil, 0, ErrMalformedAttrs
	}

	addrLen := familyAddrLen(b[1])
	if addrLen == 0 || len(b[4:]) < addrLen {
		return nil, 0, ErrMalformedAttrs
	}

	return b[4 : 4+addrLen], binary.BigEndian.Uint16(b[2:4]), nil
}

func familyAddrLen(fam byte) int {
	switch fam {
	case 0x01: // IPv4
		return net.IPv4len
	case 0x02: // IPv6
		return net.IPv6len
	default:
		return 0
	}
}
