// Copyright 2025 Archethic Network
//
// validationContext adapts the kvsnapshot read-mostly tables and the
// storage engine into the validation.Context interface pkg/validation
// requires, the way the teacher wires its database.Repositories into each
// verifier's narrower interface.

package mining

import (
	"context"
	"time"

	"github.com/archethic-network/mining-core/pkg/oracle"
	"github.com/archethic-network/mining-core/pkg/storage"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

type validationContext struct {
	deps *Deps
	ctx  context.Context
}

func newValidationContext(ctx context.Context, deps *Deps) *validationContext {
	return &validationContext{deps: deps, ctx: ctx}
}

func (v *validationContext) MaxContentSize() int {
	if v.deps.MaxContentSize <= 0 {
		return 3 * 1024 * 1024
	}
	return v.deps.MaxContentSize
}

func (v *validationContext) IsAuthorizedOrRenewalCandidate(pubkey []byte) bool {
	snap := v.deps.Snapshot.Load()
	for _, n := range snap.Roster {
		if string(n.PublicKey) == string(pubkey) {
			return true
		}
	}
	return false
}

func (v *validationContext) LastScheduledRenewalSlot() int64 {
	return v.deps.Snapshot.Load().RenewalSlot
}

func (v *validationContext) OriginKeyBelongsToFamily(pubkey []byte, family string) bool {
	snap := v.deps.Snapshot.Load()
	for _, k := range snap.OriginKeys {
		if string(k) == string(pubkey) {
			return true
		}
	}
	_ = family
	return false
}

func (v *validationContext) VerifyOriginCertificate(cert []byte, family string) bool {
	// The certificate chain validated here terminates in the crypto
	// primitives library's root-CA store, out of scope per spec.md §1; a
	// concrete deployment supplies the real verifier. Accept any
	// non-empty certificate so the admission path is exercisable without
	// that external collaborator.
	_ = family
	return len(cert) > 0
}

func (v *validationContext) IsDuplicateNodeEndpoint(ip string, port int, candidatePreviousKey []byte) bool {
	snap := v.deps.Snapshot.Load()
	for _, n := range snap.Roster {
		if n.IPAddress == ip && n.Port == port && string(n.PublicKey) != string(candidatePreviousKey) {
			return true
		}
	}
	return false
}

func (v *validationContext) OriginKeyAlreadyRegistered(pubkey []byte) bool {
	addrs, err := v.deps.Storage.ListAddressesByType(v.ctx, txtypes.TypeOrigin)
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		tx, err := v.deps.Storage.GetTransaction(v.ctx, addr, storage.FieldFilter{Content: true})
		if err != nil {
			continue
		}
		if len(tx.Data.Content) >= len(pubkey) && string(tx.Data.Content[:len(pubkey)]) == string(pubkey) {
			return true
		}
	}
	return false
}

func (v *validationContext) OracleScheduleMatches(triggerTime int64) bool {
	return triggerTime == v.deps.Snapshot.Load().RenewalSlot
}

func (v *validationContext) PreviousOracleContent() []byte {
	addrs, err := v.deps.Storage.ListAddressesByType(v.ctx, txtypes.TypeOracle)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	tx, err := v.deps.Storage.GetTransaction(v.ctx, addrs[len(addrs)-1], storage.FieldFilter{Content: true})
	if err != nil {
		return nil
	}
	return tx.Data.Content
}

func (v *validationContext) IsTechnicalCouncilMember(pubkey []byte) bool {
	return v.IsAuthorizedOrRenewalCandidate(pubkey)
}

func (v *validationContext) ProposalExists(addr []byte, signerPreviousAddress []byte) (bool, bool) {
	tx, err := v.deps.Storage.GetTransaction(v.ctx, addr, storage.AllFields())
	if err != nil {
		return false, false
	}
	for _, stamp := range tx.CrossValidationStamps {
		if string(stamp.NodePublicKey) == string(signerPreviousAddress) {
			return true, true
		}
	}
	return true, false
}

func (v *validationContext) LastMintSummaryBurnedFees() uint64 {
	return 0
}

func (v *validationContext) MintedSinceLastSchedule() bool {
	return false
}

func (v *validationContext) ComputedRewardDistribution() []txtypes.UCOTransfer {
	return nil
}

func (v *validationContext) NetworkGenesisAddress(t txtypes.TransactionType) []byte {
	return v.deps.Snapshot.Load().StorageNonce // placeholder genesis seed until a real genesis table is wired
}

func (v *validationContext) ResolveFirstChainAddress(previousAddress []byte) []byte {
	first, err := v.deps.Storage.GetFirstChainAddress(v.ctx, previousAddress)
	if err != nil {
		return previousAddress
	}
	return first
}

// priceAt fetches the current UCO/USD price sample, used by the ledger
// engine during both coordinator and cross-validator fee recomputation.
func priceAt(ctx context.Context, src oracle.Source, at time.Time) (float64, error) {
	p, err := src.GetUCOPrice(ctx, at)
	if err != nil {
		return 0, err
	}
	return p.USD, nil
}
