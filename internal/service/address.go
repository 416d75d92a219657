package service

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base32"
	"errors"
	"fmt"
)

const addressChecksumLen = 4

var addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeAddress renders an Ed25519 public key as an Algorand-style address:
// base32(pubkey || last 4 bytes of SHA-512/256(pubkey)), unpadded.
func EncodeAddress(pub ed25519.PublicKey) string {
	sum := sha512.Sum512_256(pub)
	buf := make([]byte, 0, len(pub)+addressChecksumLen)
	buf = append(buf, pub...)
	buf = append(buf, sum[len(sum)-addressChecksumLen:]...)
	return addressEncoding.EncodeToString(buf)
}

// DecodeAddress is the inverse of EncodeAddress; the checksum must match.
func DecodeAddress(addr string) (ed25519.PublicKey, error) {
	raw, err := addressEncoding.DecodeString(addr)
	if err != nil {
		return nil, fmt.Errorf("decoding address: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize+addressChecksumLen {
		return nil, fmt.Errorf("address decodes to %d bytes", len(raw))
	}
	pub := ed25519.PublicKey(raw[:ed25519.PublicKeySize])
	sum := sha512.Sum512_256(pub)
	if !bytes.Equal(raw[ed25519.PublicKeySize:], sum[len(sum)-addressChecksumLen:]) {
		return nil, errors.New("address checksum mismatch")
	}
	return pub, nil
}
