// Copyright 2025 Archethic Network
//
// Pending transaction validation: spec.md §4.2. A pure admission filter —
// no mining, no I/O beyond the read-mostly Context a caller supplies. The
// per-type rules are modeled as a dispatch table keyed by tx.type, the way
// the teacher's unified_verifier dispatches per proof level, rather than as
// an open-ended type switch with inheritance.

package validation

import (
	"encoding/json"
	"fmt"

	"github.com/archethic-network/mining-core/pkg/keystore"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

// ErrorKind is the closed set of admission-rejection reasons §4.2/§7 name.
type ErrorKind string

const (
	ErrorInvalidPreviousSignature ErrorKind = "invalid_previous_signature"
	ErrorInvalidOriginSignature   ErrorKind = "invalid_origin_signature"
	ErrorInvalidContent           ErrorKind = "invalid_content"
	ErrorInvalidSchedule          ErrorKind = "invalid_schedule"
	ErrorDuplicateNode            ErrorKind = "duplicate_node"
	ErrorInvalidTokenSpecification ErrorKind = "invalid_token_specification"
	ErrorInvalidNetworkChain      ErrorKind = "invalid_network_chain"
	ErrorContractParseError       ErrorKind = "contract_parse_error"
	ErrorContentTooLarge          ErrorKind = "content_too_large"
)

// Error is the structured {error, kind, detail} rejection §4.2 specifies.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Kind, e.Detail)
}

func reject(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Context is the read-mostly view of network state the admission filter
// consults. Implementations are backed by pkg/kvsnapshot's single-writer
// snapshot tables; validation itself never mutates or fetches over the wire.
type Context interface {
	// MaxContentSize bounds tx.data.content, in bytes.
	MaxContentSize() int

	// IsAuthorizedOrRenewalCandidate reports whether pubkey belongs to the
	// currently authorized node set or the renewal-candidate set.
	IsAuthorizedOrRenewalCandidate(pubkey []byte) bool

	// LastScheduledRenewalSlot is the most recent slot at which a
	// node_shared_secrets transaction was due.
	LastScheduledRenewalSlot() int64

	// OriginKeyBelongsToFamily reports whether pubkey is a member of the
	// named allowed origin family (e.g. "software", "tpm", "usb").
	OriginKeyBelongsToFamily(pubkey []byte, family string) bool

	// VerifyOriginCertificate verifies cert against the root CA for family.
	VerifyOriginCertificate(cert []byte, family string) bool

	// IsDuplicateNodeEndpoint reports whether (ip,port) is already claimed
	// by a live node whose previous key differs from candidatePreviousKey.
	IsDuplicateNodeEndpoint(ip string, port int, candidatePreviousKey []byte) bool

	// OriginKeyAlreadyRegistered reports whether an origin transaction
	// already registered this origin public key.
	OriginKeyAlreadyRegistered(pubkey []byte) bool

	// OracleScheduleMatches reports whether triggerTime is the scheduled
	// slot for oracle/oracle_summary transactions.
	OracleScheduleMatches(triggerTime int64) bool

	// PreviousOracleContent returns the prior oracle transaction's content,
	// for consistency checking of an oracle_summary.
	PreviousOracleContent() []byte

	// IsTechnicalCouncilMember reports whether pubkey sits on the technical
	// council authorized to sign code_approval transactions.
	IsTechnicalCouncilMember(pubkey []byte) bool

	// ProposalExists reports whether a code_proposal transaction at addr
	// exists and has not already been signed by signerPreviousAddress.
	ProposalExists(addr []byte, signerPreviousAddress []byte) (exists bool, alreadySigned bool)

	// LastMintSummaryBurnedFees is the fee total burned since the last
	// mint_rewards schedule, which a new mint_rewards.supply must equal.
	LastMintSummaryBurnedFees() uint64

	// MintedSinceLastSchedule reports whether a mint_rewards transaction has
	// already landed since the current schedule opened.
	MintedSinceLastSchedule() bool

	// ComputedRewardDistribution returns the engine-computed reward
	// transfer list for the current cycle, which node_rewards must match.
	ComputedRewardDistribution() []txtypes.UCOTransfer

	// NetworkGenesisAddress returns the recognized genesis address for a
	// network-type transaction's chain, or nil if unknown.
	NetworkGenesisAddress(t txtypes.TransactionType) []byte

	// ResolveFirstChainAddress resolves tx's previous_address (the address
	// its previous_public_key hashes to, i.e. tx.Address for a continuing
	// chain) to that chain's earliest known address.
	ResolveFirstChainAddress(previousAddress []byte) []byte
}

// tokenSpec is the fixed JSON schema a token transaction's content must
// match (property 8).
type tokenSpec struct {
	Type       string      `json:"type"` // "fungible" or "non-fungible"
	Name       string      `json:"name"`
	Symbol     string      `json:"symbol"`
	Supply     uint64      `json:"supply"`
	Decimals   int         `json:"decimals"`
	Collection []tokenItem `json:"collection,omitempty"`
}

type tokenItem struct {
	ID uint64 `json:"id"`
}

// nodeContent is the fixed decode shape of a node transaction's content.
type nodeContent struct {
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	HTTPPort   int    `json:"http_port"`
	Transport  string `json:"transport"`
	RewardAddr []byte `json:"reward_address"`
	OriginPK   []byte `json:"origin_public_key"`
	Cert       []byte `json:"certificate"`
}

// originContent is the fixed decode shape of an origin transaction's content.
type originContent struct {
	OriginPK []byte `json:"origin_public_key"`
	Cert     []byte `json:"certificate"`
}

// Validate runs the full admission filter: the common checks every type
// must pass, then the per-type rule from the §4.2 decision table.
func Validate(tx *txtypes.Transaction, ctx Context) error {
	if err := verifyPreviousSignature(tx); err != nil {
		return err
	}
	if err := verifyOriginSignature(tx); err != nil {
		return err
	}
	if ctx.MaxContentSize() > 0 && len(tx.Data.Content) >= ctx.MaxContentSize() {
		return reject(ErrorContentTooLarge, "content length %d exceeds limit %d", len(tx.Data.Content), ctx.MaxContentSize())
	}
	if len(tx.Data.Code) > 0 {
		if err := parseContract(tx.Data.Code); err != nil {
			return reject(ErrorContractParseError, "%v", err)
		}
	}
	if tx.Type.IsNetworkType() {
		if err := verifyNetworkChainContinuity(tx, ctx); err != nil {
			return err
		}
	}
	return validateByType(tx, ctx)
}

func verifyPreviousSignature(tx *txtypes.Transaction) error {
	body := txtypes.SerializeForPreviousSignature(tx)
	if !keystore.VerifyEd25519(tx.PreviousPublicKey, body, tx.PreviousSignature) {
		return reject(ErrorInvalidPreviousSignature, "previous_signature does not verify against previous_public_key")
	}
	if err := txtypes.ValidatePreviousKeyLinksToAddress(tx.Address, tx.PreviousPublicKey); err != nil {
		return reject(ErrorInvalidPreviousSignature, "%v", err)
	}
	return nil
}

// verifyOriginSignature only checks structural presence: the actual origin
// key that verifies the signature is a coordinator-side mining concern
// (proof_of_work, §4.3 step 3), since admission does not yet know the
// origin-keys set's ranked order.
func verifyOriginSignature(tx *txtypes.Transaction) error {
	if len(tx.OriginSignature) == 0 {
		return reject(ErrorInvalidOriginSignature, "origin_signature is empty")
	}
	return nil
}

// parseContract is a structural stub: full interpretation is out of scope
// here (an external smart-contract interpreter collaborator). Admission
// rejects only code that is blank after leading whitespace; the code is
// not parsed and no clause or condition block is recognized, matching the
// teacher's pattern of a narrow interface boundary around a collaborator
// it does not implement.
func parseContract(code []byte) error {
	if len(code) == 0 {
		return nil
	}
	// Blank code is the only shape admission rejects.
	trimmed := trimLeadingSpace(code)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty contract body")
	}
	return nil
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\n' || b[i] == '\t' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

func verifyNetworkChainContinuity(tx *txtypes.Transaction, ctx Context) error {
	expected := ctx.NetworkGenesisAddress(tx.Type)
	if len(expected) == 0 {
		return nil // no known genesis recorded yet for this network chain (bootstrap)
	}
	first := ctx.ResolveFirstChainAddress(tx.Address)
	if string(first) != string(expected) {
		return reject(ErrorInvalidNetworkChain, "previous address does not resolve to the recognized genesis address for %s", tx.Type)
	}
	return nil
}

func validateByType(tx *txtypes.Transaction, ctx Context) error {
	switch tx.Type {
	case txtypes.TypeNode:
		return validateNode(tx, ctx)
	case txtypes.TypeNodeSharedSecrets:
		return validateNodeSharedSecrets(tx, ctx)
	case txtypes.TypeOrigin:
		return validateOrigin(tx, ctx)
	case txtypes.TypeOracle, txtypes.TypeOracleSummary:
		return validateOracle(tx, ctx)
	case txtypes.TypeCodeProposal:
		return validateCodeProposal(tx)
	case txtypes.TypeCodeApproval:
		return validateCodeApproval(tx, ctx)
	case txtypes.TypeMintRewards:
		return validateMintRewards(tx, ctx)
	case txtypes.TypeNodeRewards:
		return validateNodeRewards(tx, ctx)
	case txtypes.TypeToken:
		return validateToken(tx)
	case txtypes.TypeKeychain, txtypes.TypeKeychainAccess:
		return validateKeychain(tx)
	default:
		// transfer and every other type: no additional rule.
		return nil
	}
}

func validateNode(tx *txtypes.Transaction, ctx Context) error {
	var content nodeContent
	if err := json.Unmarshal(tx.Data.Content, &content); err != nil {
		return reject(ErrorInvalidContent, "node content does not decode: %v", err)
	}
	if !ctx.OriginKeyBelongsToFamily(content.OriginPK, "node") {
		return reject(ErrorInvalidContent, "origin_public_key does not belong to an allowed origin family")
	}
	if !ctx.VerifyOriginCertificate(content.Cert, "node") {
		return reject(ErrorInvalidContent, "certificate does not verify under the root CA for this family")
	}
	if ctx.IsDuplicateNodeEndpoint(content.IP, content.Port, tx.PreviousPublicKey) {
		return reject(ErrorDuplicateNode, "(%s,%d) already claimed by another live node", content.IP, content.Port)
	}
	for _, tt := range tx.Data.Ledger.Token {
		if !isRewardToken(tt.Token) {
			return reject(ErrorInvalidContent, "node transaction may only move reward tokens")
		}
	}
	return nil
}

// isRewardToken is a placeholder discriminator the oracle/registry layer
// fills concretely; here it only rejects the empty token address.
func isRewardToken(tokenAddr []byte) bool {
	return len(tokenAddr) > 0
}

func validateNodeSharedSecrets(tx *txtypes.Transaction, ctx Context) error {
	if len(tx.Data.Ownerships) != 1 {
		return reject(ErrorInvalidContent, "node_shared_secrets must carry exactly one ownership, got %d", len(tx.Data.Ownerships))
	}
	for _, ak := range tx.Data.Ownerships[0].AuthorizedKeys {
		if !ctx.IsAuthorizedOrRenewalCandidate(ak.PublicKey) {
			return reject(ErrorInvalidContent, "authorized_key does not belong to an authorized or renewal-candidate node")
		}
	}
	return nil
}

func validateOrigin(tx *txtypes.Transaction, ctx Context) error {
	var content originContent
	if err := json.Unmarshal(tx.Data.Content, &content); err != nil {
		return reject(ErrorInvalidContent, "origin content does not decode: %v", err)
	}
	if ctx.OriginKeyAlreadyRegistered(content.OriginPK) {
		return reject(ErrorInvalidContent, "origin_public_key is already registered")
	}
	if !ctx.VerifyOriginCertificate(content.Cert, "origin") {
		return reject(ErrorInvalidContent, "certificate does not verify under the root CA")
	}
	return nil
}

func validateOracle(tx *txtypes.Transaction, ctx Context) error {
	var envelope struct {
		TriggerTime int64 `json:"trigger_time"`
	}
	if err := json.Unmarshal(tx.Data.Content, &envelope); err != nil {
		return reject(ErrorInvalidContent, "oracle content does not decode: %v", err)
	}
	if !ctx.OracleScheduleMatches(envelope.TriggerTime) {
		return reject(ErrorInvalidSchedule, "trigger time does not match the current oracle schedule")
	}
	if len(tx.Data.Content) == 0 {
		return reject(ErrorInvalidContent, "oracle content is empty")
	}
	if tx.Type == txtypes.TypeOracleSummary {
		prev := ctx.PreviousOracleContent()
		if len(prev) > 0 && !json.Valid(tx.Data.Content) {
			return reject(ErrorInvalidContent, "oracle_summary content does not parse")
		}
	}
	return nil
}

func validateCodeProposal(tx *txtypes.Transaction) error {
	if len(tx.Data.Code) == 0 {
		return reject(ErrorInvalidContent, "code_proposal must carry a versioned diff")
	}
	return nil
}

func validateCodeApproval(tx *txtypes.Transaction, ctx Context) error {
	if !ctx.IsTechnicalCouncilMember(tx.PreviousPublicKey) {
		return reject(ErrorInvalidContent, "signer is not a technical-council member")
	}
	targetAddr := tx.Data.Recipients
	if len(targetAddr) == 0 {
		return reject(ErrorInvalidContent, "code_approval must target an existing proposal")
	}
	exists, alreadySigned := ctx.ProposalExists(targetAddr[0].Address, tx.Address)
	if !exists {
		return reject(ErrorInvalidContent, "target proposal does not exist")
	}
	if alreadySigned {
		return reject(ErrorInvalidContent, "signer has already approved this proposal")
	}
	return nil
}

func validateMintRewards(tx *txtypes.Transaction, ctx Context) error {
	var payload struct {
		Supply uint64 `json:"supply"`
	}
	if err := json.Unmarshal(tx.Data.Content, &payload); err != nil {
		return reject(ErrorInvalidContent, "mint_rewards content does not decode: %v", err)
	}
	if payload.Supply != ctx.LastMintSummaryBurnedFees() {
		return reject(ErrorInvalidContent, "supply %d does not equal last-summary burned fees %d", payload.Supply, ctx.LastMintSummaryBurnedFees())
	}
	if ctx.MintedSinceLastSchedule() {
		return reject(ErrorInvalidSchedule, "mint_rewards already issued since the last schedule")
	}
	return nil
}

func validateNodeRewards(tx *txtypes.Transaction, ctx Context) error {
	expected := ctx.ComputedRewardDistribution()
	got := tx.Data.Ledger.UCO
	if len(expected) != len(got) {
		return reject(ErrorInvalidContent, "transfer list length %d does not match computed distribution length %d", len(got), len(expected))
	}
	for i := range expected {
		if string(expected[i].To) != string(got[i].To) || expected[i].Amount != got[i].Amount {
			return reject(ErrorInvalidContent, "transfer list does not equal the engine-computed reward distribution")
		}
	}
	return nil
}

func validateToken(tx *txtypes.Transaction) error {
	var spec tokenSpec
	if err := json.Unmarshal(tx.Data.Content, &spec); err != nil {
		return reject(ErrorInvalidTokenSpecification, "token content does not match the fixed schema: %v", err)
	}
	if spec.Type == "non-fungible" {
		if spec.Decimals != 8 {
			return reject(ErrorInvalidTokenSpecification, "non-fungible token must use 8 decimals, got %d", spec.Decimals)
		}
		seen := make(map[uint64]bool, len(spec.Collection))
		for _, item := range spec.Collection {
			if seen[item.ID] {
				return reject(ErrorInvalidTokenSpecification, "duplicate collection id %d", item.ID)
			}
			seen[item.ID] = true
		}
		want := uint64(len(spec.Collection)) * 100_000_000
		if spec.Supply != want {
			return reject(ErrorInvalidTokenSpecification, "supply %d does not equal len(collection)*10^8 = %d", spec.Supply, want)
		}
	} else {
		if len(spec.Collection) != 0 {
			return reject(ErrorInvalidTokenSpecification, "fungible token must not carry a collection")
		}
	}
	return nil
}

func validateKeychain(tx *txtypes.Transaction) error {
	if !json.Valid(tx.Data.Content) {
		return reject(ErrorInvalidContent, "DID document does not validate against schema")
	}
	if tx.Type == txtypes.TypeKeychainAccess && len(tx.Data.Ownerships) == 0 {
		return reject(ErrorInvalidContent, "keychain_access must carry an ownership authorizing previous_public_key")
	}
	return nil
}
