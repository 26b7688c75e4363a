package util

import "bytes"

// EncodeIlk right-pads a collateral type name ("WBTC-A") with zero bytes to
// the fixed 32-byte tag the Vat/Dog contracts key their mappings by.
func EncodeIlk(name string) [32]byte {
	var tag [32]byte
	copy(tag[:], name)
	return tag
}

// DecodeIlk drops the trailing zero bytes of a 32-byte ilk tag and returns
// the UTF-8 name prefix.
func DecodeIlk(tag [32]byte) string {
	return string(bytes.TrimRight(tag[:], "\x00"))
}
