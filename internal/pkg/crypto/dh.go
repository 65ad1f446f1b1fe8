package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// DH implements the bespoke 32-bit Diffie-Hellman key agreement used by the
// hub handshake, ported from original_source/crypto.h. Both prime and
// generator arrive from the hub as part of the handshake frame; seed is this
// side's ephemeral private value.
//
// All arithmetic is carried out modulo a 32-bit prime using a
// doubling-multiplication (to keep intermediate products from overflowing
// 64 bits) and a square-and-multiply exponentiation. This is intentionally
// not a textbook DH group — it mirrors the hub firmware's own integer-only
// implementation bit for bit.
//
// A 32-bit group offers no real cryptographic strength. A hub is trusted
// because it presents its user's pre-shared client token during
// authorization, not because of this exchange.
type DH struct {
	Prime     uint32
	Generator uint32
	Seed      uint32
}

// NewDH builds a DH instance for the given prime/generator pair, drawing a
// random seed from crypto/rand. The hub firmware uses a weak PRNG for its
// own seed; this side has no reason to, so it uses a real entropy source
// for the one quantity that benefits from unpredictability.
func NewDH(prime, generator uint32) (*DH, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("crypto: failed to seed dh: %w", err)
	}

	seed := binary.BigEndian.Uint32(buf[:])
	if prime > 1 {
		seed = seed % (prime - 1)
	}
	if seed == 0 {
		seed = 1
	}

	return &DH{Prime: prime, Generator: generator, Seed: seed}, nil
}

// PublicKey returns generator^seed mod prime, the value sent to the peer.
func (d *DH) PublicKey() uint32 {
	return power(d.Generator, d.Seed, d.Prime)
}

// SharedKey returns peerPublicKey^seed mod prime, the value this side and
// the peer will independently arrive at once both public keys have been
// exchanged.
func (d *DH) SharedKey(peerPublicKey uint32) uint32 {
	return power(peerPublicKey, d.Seed, d.Prime)
}

// multiply computes (a*b) mod m without letting the intermediate product
// overflow 64 bits, by repeated doubling — the same technique
// original_source/crypto.h's DH::multiply uses since its target platform's
// widest native integer is 32 bits.
func multiply(a, b, m uint32) uint32 {
	var result uint64
	aa := uint64(a) % uint64(m)
	bb := uint64(b)

	for bb > 0 {
		if bb&1 == 1 {
			result = (result + aa) % uint64(m)
		}
		aa = (aa * 2) % uint64(m)
		bb >>= 1
	}

	return uint32(result)
}

// power computes (base^exp) mod m via square-and-multiply, using multiply
// in place of native multiplication at every step.
func power(base, exp, m uint32) uint32 {
	result := uint32(1)
	base = base % m

	for exp > 0 {
		if exp&1 == 1 {
			result = multiply(result, base, m)
		}
		exp >>= 1
		base = multiply(base, base, m)
	}

	return result
}
