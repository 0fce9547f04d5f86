// Copyright 2025 Archethic Network
//
// Handle is the opaque keystore the design notes call for: an object that
// owns private key material and exposes sign/derive/public_key methods, with
// no raw key bytes ever leaving it. The daily-nonce handle is swapped
// atomically on node_shared_secrets rotation (atomic.Pointer swap), so a
// workflow mid-signature always observes one consistent key generation.

package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync/atomic"

	"github.com/archethic-network/mining-core/pkg/cryptoutil"
)

// NodeIdentity is the long-lived Ed25519 keypair identifying this node on
// the network. It signs per-transaction fields on behalf of the node acting
// as a welcome node or committee member (not the transaction's own author,
// whose key is the chain's previous_public_key).
type NodeIdentity struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewNodeIdentity generates a fresh Ed25519 node identity.
func NewNodeIdentity() (*NodeIdentity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate node identity: %w", err)
	}
	return &NodeIdentity{public: pub, private: priv}, nil
}

// NodeIdentityFromSeed derives a deterministic node identity, used by tests
// and by nodekey provisioning from an externally supplied seed file.
func NodeIdentityFromSeed(seed []byte) (*NodeIdentity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keystore: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &NodeIdentity{public: priv.Public().(ed25519.PublicKey), private: priv}, nil
}

// PublicKey returns the prefixed public key as carried on the wire.
func (h *NodeIdentity) PublicKey() []byte {
	return cryptoutil.PrefixedKey(cryptoutil.CurveEd25519, cryptoutil.OriginSoftware, h.public)
}

// Sign signs arbitrary data with the node's private key. No private bytes
// are returned to the caller.
func (h *NodeIdentity) Sign(data []byte) []byte {
	return ed25519.Sign(h.private, data)
}

// VerifyEd25519 verifies a signature against a prefixed Ed25519 public key.
func VerifyEd25519(prefixedKey, data, signature []byte) bool {
	curve, _, raw, err := cryptoutil.UnprefixKey(prefixedKey)
	if err != nil || curve != cryptoutil.CurveEd25519 {
		return false
	}
	if len(raw) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(raw), data, signature)
}

// DailyNonceHandle owns the current day's BLS12-381 key used to sign
// election seeds and validation stamps. It supports atomic replacement: the
// old generation is simply dropped when UnwrapAndRotate installs a new one,
// with no lock held by readers.
type DailyNonceHandle struct {
	current atomic.Pointer[dailyNonceGeneration]
}

type dailyNonceGeneration struct {
	private *BLSPrivateKey
	public  *BLSPublicKey
}

// NewDailyNonceHandle installs the given key pair as generation zero.
func NewDailyNonceHandle(priv *BLSPrivateKey) *DailyNonceHandle {
	h := &DailyNonceHandle{}
	h.current.Store(&dailyNonceGeneration{private: priv, public: priv.PublicKey()})
	return h
}

// PublicKey returns the current generation's public key.
func (h *DailyNonceHandle) PublicKey() *BLSPublicKey {
	return h.current.Load().public
}

// SignValidationStamp signs the stamp body with the current generation's key.
func (h *DailyNonceHandle) SignValidationStamp(body []byte) *BLSSignature {
	return h.current.Load().private.SignWithDomain(DomainValidationStamp, body)
}

// ElectionSeed derives the election sorting seed for a transaction using the
// current generation's key.
func (h *DailyNonceHandle) ElectionSeed(txAddress []byte, txTimestamp int64) []byte {
	return ElectionSeed(h.current.Load().private, txAddress, txTimestamp)
}

// UnwrapAndRotate atomically installs a new daily-nonce generation, derived
// from a freshly decrypted node_shared_secrets ownership payload. The swap
// is lock-free: in-flight signers using the old generation still complete
// correctly since they already captured a *dailyNonceGeneration pointer.
func (h *DailyNonceHandle) UnwrapAndRotate(seed []byte) error {
	priv, pub, err := GenerateBLSKeyPairFromSeed(seed)
	if err != nil {
		return fmt.Errorf("keystore: rotate daily nonce: %w", err)
	}
	h.current.Store(&dailyNonceGeneration{private: priv, public: pub})
	return nil
}
