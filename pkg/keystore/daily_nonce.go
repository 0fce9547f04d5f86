// Copyright 2025 Archethic Network
//
// Daily-nonce BLS12-381 signer. Adapted from the teacher's pure-Go BLS12-381
// attestation signer (pkg/crypto/bls): same curve, same key/signature shapes,
// repointed at two ARCH-specific uses instead of validator attestations:
//
//   - producing the per-day "sorting seed" that Election folds into every
//     node's rendezvous score, so the committee cannot be pre-computed by
//     non-validators before the daily nonce is known;
//   - signing the coordinator's ValidationStamp.
//
// A BLS signature is a natural fit for both: it is a short, deterministic,
// publicly-verifiable function of (private scalar, message) with no
// randomness to seed, which is exactly what a reproducible-by-everyone
// sorting seed requires.

package keystore

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

const (
	DomainElectionSeed  = "ARCH_ELECTION_SEED_V1"
	DomainValidationStamp = "ARCH_VALIDATION_STAMP_V1"
)

const (
	BLSPrivateKeySize = 32
	BLSPublicKeySize  = 96
	BLSSignatureSize  = 48
)

var (
	blsInitOnce sync.Once
	g1Gen       bls12381.G1Affine
	g2Gen       bls12381.G2Affine
)

func initBLS() {
	blsInitOnce.Do(func() {
		_, _, g1, g2 := bls12381.Generators()
		g1Gen = g1
		g2Gen = g2
	})
}

// BLSPrivateKey is a BLS12-381 scalar in Fr.
type BLSPrivateKey struct{ scalar fr.Element }

// BLSPublicKey is a point on G2.
type BLSPublicKey struct{ point bls12381.G2Affine }

// BLSSignature is a point on G1.
type BLSSignature struct{ point bls12381.G1Affine }

// GenerateBLSKeyPairFromSeed derives a deterministic key pair from a seed,
// used when rotating in a new daily nonce derived from a node_shared_secrets
// transaction's decrypted ownership secret.
func GenerateBLSKeyPairFromSeed(seed []byte) (*BLSPrivateKey, *BLSPublicKey, error) {
	initBLS()
	if len(seed) < 32 {
		return nil, nil, errors.New("keystore: seed must be at least 32 bytes")
	}
	hash := sha256.Sum256(seed)
	var sk fr.Element
	sk.SetBytes(hash[:])
	priv := &BLSPrivateKey{scalar: sk}
	return priv, priv.PublicKey(), nil
}

func BLSPrivateKeyFromBytes(data []byte) (*BLSPrivateKey, error) {
	initBLS()
	if len(data) != BLSPrivateKeySize {
		return nil, fmt.Errorf("keystore: invalid BLS private key size: got %d want %d", len(data), BLSPrivateKeySize)
	}
	var sk fr.Element
	sk.SetBytes(data)
	return &BLSPrivateKey{scalar: sk}, nil
}

func BLSPublicKeyFromBytes(data []byte) (*BLSPublicKey, error) {
	initBLS()
	var pk bls12381.G2Affine
	if _, err := pk.SetBytes(data); err != nil {
		return nil, fmt.Errorf("keystore: deserialize BLS public key: %w", err)
	}
	return &BLSPublicKey{point: pk}, nil
}

func BLSSignatureFromBytes(data []byte) (*BLSSignature, error) {
	initBLS()
	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(data); err != nil {
		return nil, fmt.Errorf("keystore: deserialize BLS signature: %w", err)
	}
	return &BLSSignature{point: sig}, nil
}

func (sk *BLSPrivateKey) Bytes() []byte {
	b := sk.scalar.Bytes()
	return b[:]
}

func (sk *BLSPrivateKey) Hex() string { return hex.EncodeToString(sk.Bytes()) }

// PublicKey derives pk = sk * G2.
func (sk *BLSPrivateKey) PublicKey() *BLSPublicKey {
	initBLS()
	var pk bls12381.G2Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	pk.ScalarMultiplication(&g2Gen, &skBig)
	return &BLSPublicKey{point: pk}
}

// SignWithDomain signs H(domain || message), producing sig = sk * H(msg).
func (sk *BLSPrivateKey) SignWithDomain(domain string, message []byte) *BLSSignature {
	h := hashToG1(computeDomainMessage(domain, message))
	var sig bls12381.G1Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	sig.ScalarMultiplication(&h, &skBig)
	return &BLSSignature{point: sig}
}

func (pk *BLSPublicKey) Bytes() []byte {
	b := pk.point.Bytes()
	return b[:]
}

func (pk *BLSPublicKey) Hex() string { return hex.EncodeToString(pk.Bytes()) }

// VerifyWithDomain checks e(sig, G2) == e(H(domain||msg), pk).
func (pk *BLSPublicKey) VerifyWithDomain(sig *BLSSignature, domain string, message []byte) bool {
	initBLS()
	h := hashToG1(computeDomainMessage(domain, message))
	var negPk bls12381.G2Affine
	negPk.Neg(&pk.point)
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{sig.point, h},
		[]bls12381.G2Affine{g2Gen, negPk},
	)
	return err == nil && ok
}

func (sig *BLSSignature) Bytes() []byte {
	b := sig.point.Bytes()
	return b[:]
}

func (sig *BLSSignature) Hex() string { return hex.EncodeToString(sig.Bytes()) }

// ElectionSeed derives the deterministic sorting seed Election uses to score
// every candidate node for a transaction: the BLS signature of the active
// daily-nonce key over the transaction's address and timestamp, hashed down
// to a fixed-size seed. Every honest node with the same daily nonce and the
// same transaction reaches the same seed (property 1, election determinism).
func ElectionSeed(dailyNonce *BLSPrivateKey, txAddress []byte, txTimestamp int64) []byte {
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(txTimestamp))
	msg := append(append([]byte{}, txAddress...), tsBuf[:]...)
	sig := dailyNonce.SignWithDomain(DomainElectionSeed, msg)
	sum := sha256.Sum256(sig.Bytes())
	return sum[:]
}

func hashToG1(message []byte) bls12381.G1Affine {
	h := sha256.New()
	h.Write([]byte("ARCH_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_"))
	h.Write(message)

	var counter uint64
	for {
		h2 := sha256.New()
		h2.Write(h.Sum(nil))
		var ctrBuf [8]byte
		binary.BigEndian.PutUint64(ctrBuf[:], counter)
		h2.Write(ctrBuf[:])
		hash := h2.Sum(nil)

		var point bls12381.G1Affine
		if _, err := point.SetBytes(hash); err == nil && !point.IsInfinity() {
			return point
		}

		var scalar fr.Element
		scalar.SetBytes(hash)
		var scalarBig big.Int
		scalar.BigInt(&scalarBig)
		var result bls12381.G1Affine
		result.ScalarMultiplication(&g1Gen, &scalarBig)
		if !result.IsInfinity() {
			return result
		}

		counter++
		if counter > 1000 {
			return g1Gen
		}
	}
}

func computeDomainMessage(domain string, message []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write(message)
	return h.Sum(nil)
}
