package validation

import (
	"encoding/json"
	"testing"

	"github.com/archethic-network/mining-core/pkg/cryptoutil"
	"github.com/archethic-network/mining-core/pkg/keystore"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

// stubContext implements Context with permissive defaults; individual tests
// override only the methods their rule exercises.
type stubContext struct {
	maxContentSize int
}

func (s stubContext) MaxContentSize() int { return s.maxContentSize }
func (s stubContext) IsAuthorizedOrRenewalCandidate(pubkey []byte) bool { return true }
func (s stubContext) LastScheduledRenewalSlot() int64 { return 0 }
func (s stubContext) OriginKeyBelongsToFamily(pubkey []byte, family string) bool { return true }
func (s stubContext) VerifyOriginCertificate(cert []byte, family string) bool { return true }
func (s stubContext) IsDuplicateNodeEndpoint(ip string, port int, candidatePreviousKey []byte) bool {
	return false
}
func (s stubContext) OriginKeyAlreadyRegistered(pubkey []byte) bool { return false }
func (s stubContext) OracleScheduleMatches(triggerTime int64) bool { return true }
func (s stubContext) PreviousOracleContent() []byte                { return nil }
func (s stubContext) IsTechnicalCouncilMember(pubkey []byte) bool   { return true }
func (s stubContext) ProposalExists(addr, signer []byte) (bool, bool) { return true, false }
func (s stubContext) LastMintSummaryBurnedFees() uint64             { return 0 }
func (s stubContext) MintedSinceLastSchedule() bool                 { return false }
func (s stubContext) ComputedRewardDistribution() []txtypes.UCOTransfer { return nil }
func (s stubContext) NetworkGenesisAddress(t txtypes.TransactionType) []byte { return nil }
func (s stubContext) ResolveFirstChainAddress(previousAddress []byte) []byte { return nil }

func signedTransaction(t *testing.T, txType txtypes.TransactionType, content []byte) *txtypes.Transaction {
	t.Helper()
	identity, err := keystore.NewNodeIdentity()
	if err != nil {
		t.Fatalf("new node identity: %v", err)
	}
	tx := &txtypes.Transaction{
		Type:              txType,
		Data:              txtypes.TransactionData{Content: content},
		PreviousPublicKey: identity.PublicKey(),
	}
	tx.Address = txtypes.DeriveAddress(tx.PreviousPublicKey)
	tx.PreviousSignature = identity.Sign(txtypes.SerializeForPreviousSignature(tx))
	tx.OriginSignature = []byte("origin-sig-placeholder")
	return tx
}

func TestValidateRejectsBadPreviousSignature(t *testing.T) {
	tx := signedTransaction(t, txtypes.TypeTransfer, []byte("hi"))
	tx.PreviousSignature[0] ^= 0xFF
	err := Validate(tx, stubContext{maxContentSize: 1 << 20})
	verr, ok := err.(*Error)
	if !ok || verr.Kind != ErrorInvalidPreviousSignature {
		t.Fatalf("expected invalid_previous_signature, got %v", err)
	}
}

func TestValidateTransferHasNoAdditionalRule(t *testing.T) {
	tx := signedTransaction(t, txtypes.TypeTransfer, []byte("hello"))
	if err := Validate(tx, stubContext{maxContentSize: 1 << 20}); err != nil {
		t.Fatalf("unexpected error for plain transfer: %v", err)
	}
}

func tokenContent(t *testing.T, spec any) []byte {
	t.Helper()
	b, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal token spec: %v", err)
	}
	return b
}

// TestNonFungibleTokenSupplyMustMatchCollection exercises property 8 and
// scenario S4: supply must equal len(collection) * 10^8.
func TestNonFungibleTokenSupplyMustMatchCollection(t *testing.T) {
	content := tokenContent(t, tokenSpec{
		Type:       "non-fungible",
		Decimals:   8,
		Collection: []tokenItem{{ID: 1}, {ID: 2}},
		Supply:     200_000_000,
	})
	tx := signedTransaction(t, txtypes.TypeToken, content)
	if err := Validate(tx, stubContext{maxContentSize: 1 << 20}); err != nil {
		t.Fatalf("expected matching supply to be accepted, got %v", err)
	}

	badContent := tokenContent(t, tokenSpec{
		Type:       "non-fungible",
		Decimals:   8,
		Collection: []tokenItem{{ID: 1}, {ID: 2}},
		Supply:     100_000_000,
	})
	tx2 := signedTransaction(t, txtypes.TypeToken, badContent)
	err := Validate(tx2, stubContext{maxContentSize: 1 << 20})
	verr, ok := err.(*Error)
	if !ok || verr.Kind != ErrorInvalidTokenSpecification {
		t.Fatalf("expected invalid_token_specification for supply mismatch, got %v", err)
	}
}

func TestNonFungibleTokenRejectsDuplicateCollectionIDs(t *testing.T) {
	content := tokenContent(t, tokenSpec{
		Type:       "non-fungible",
		Decimals:   8,
		Collection: []tokenItem{{ID: 1}, {ID: 1}},
		Supply:     200_000_000,
	})
	tx := signedTransaction(t, txtypes.TypeToken, content)
	err := Validate(tx, stubContext{maxContentSize: 1 << 20})
	verr, ok := err.(*Error)
	if !ok || verr.Kind != ErrorInvalidTokenSpecification {
		t.Fatalf("expected invalid_token_specification for duplicate ids, got %v", err)
	}
}

func TestFungibleTokenRejectsCollection(t *testing.T) {
	content := tokenContent(t, tokenSpec{
		Type:       "fungible",
		Decimals:   8,
		Collection: []tokenItem{{ID: 1}},
		Supply:     100,
	})
	tx := signedTransaction(t, txtypes.TypeToken, content)
	err := Validate(tx, stubContext{maxContentSize: 1 << 20})
	if err == nil {
		t.Fatalf("expected fungible token with a collection to be rejected")
	}
}

// TestNetworkChainContinuityRejectsUnknownGenesis exercises property 9.
func TestNetworkChainContinuityRejectsUnknownGenesis(t *testing.T) {
	tx := signedTransaction(t, txtypes.TypeNodeSharedSecrets, tokenContent(t, struct{}{}))
	tx.Data.Ownerships = []txtypes.Ownership{{Secret: []byte("s")}}
	// Ownerships are part of the signed body, so sign again once it is set.
	identity, err := keystore.NewNodeIdentity()
	if err != nil {
		t.Fatalf("new node identity: %v", err)
	}
	tx.PreviousPublicKey = identity.PublicKey()
	tx.Address = txtypes.DeriveAddress(tx.PreviousPublicKey)
	tx.PreviousSignature = identity.Sign(txtypes.SerializeForPreviousSignature(tx))
	ctx := mismatchedGenesisContext{}
	err = Validate(tx, ctx)
	verr, ok := err.(*Error)
	if !ok || verr.Kind != ErrorInvalidNetworkChain {
		t.Fatalf("expected invalid_network_chain, got %v", err)
	}
}

type mismatchedGenesisContext struct{ stubContext }

func (mismatchedGenesisContext) NetworkGenesisAddress(t txtypes.TransactionType) []byte {
	return cryptoutil.Hash(cryptoutil.HashSHA256, []byte("known-genesis"))
}
func (mismatchedGenesisContext) ResolveFirstChainAddress(previousAddress []byte) []byte {
	return cryptoutil.Hash(cryptoutil.HashSHA256, []byte("some-other-chain"))
}
func (mismatchedGenesisContext) MaxContentSize() int { return 1 << 20 }
