package policy

import (
	"fmt"
	"math/big"
)

// decodeRSAPublicKey is the inverse of the RFC 3110 encoding the soft
// signer produces: a length-prefixed exponent followed by the
// modulus. It returns the exponent value and the modulus size in
// bits, the two quantities approved_algorithms policy bounds.
func decodeRSAPublicKey(raw []byte) (exponent int, modulusBits int, err error) {
	if len(raw) < 1 {
		return 0, 0, fmt.Errorf("policy: RSA public key too short")
	}
	var expLen int
	var offset int
	if raw[0] == 0 {
		if len(raw) < 3 {
			return 0, 0, fmt.Errorf("policy: RSA public key too short for extended exponent length")
		}
		expLen = int(raw[1])<<8 | int(raw[2])
		offset = 3
	} else {
		expLen = int(raw[0])
		offset = 1
	}
	if len(raw) < offset+expLen {
		return 0, 0, fmt.Errorf("policy: RSA public key truncated exponent")
	}
	e := new(big.Int).SetBytes(raw[offset : offset+expLen])
	n := new(big.Int).SetBytes(raw[offset+expLen:])
	if n.Sign() == 0 {
		return 0, 0, fmt.Errorf("policy: RSA public key has empty modulus")
	}
	return int(e.Int64()), n.BitLen(), nil
}
