// Copyright 2025 Archethic Network
//
// Fee engine: spec.md §4.4. Pure, deterministic, no I/O — every committee
// member computes the same fee from the same transaction and the same
// oracle price sample, which is what lets cross-validators detect a
// transaction_fee inconsistency (spec.md §4.3 step 2).

package ledger

import (
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

// Pricing holds the USD-denominated fee schedule. Fees are specified in USD
// cents and converted to UCO's smallest unit (10^8 per UCO) using the oracle
// price sample, so that fees track a stable USD target even as the UCO/USD
// rate moves.
type Pricing struct {
	BaseFeeUSDCents     uint64
	PerByteUSDCents     uint64
	PerMovementUSDCents uint64
	ContractUSDCents    uint64
}

// DefaultPricing mirrors a conservative, always-positive fee schedule.
func DefaultPricing() Pricing {
	return Pricing{
		BaseFeeUSDCents:     1,   // $0.01 base
		PerByteUSDCents:     1,   // $0.01 per 100 bytes, scaled below
		PerMovementUSDCents: 2,   // $0.02 per declared movement
		ContractUSDCents:    10,  // $0.10 if the transaction carries code
	}
}

const ucoSmallestUnitsPerUCO = 100_000_000

// usdCentsToUCO converts a USD-cent amount to UCO's smallest unit given the
// UCO/USD price (USD per 1 UCO). Scaling is inverse to the price: a higher
// UCO price means fewer UCO smallest-units buy the same USD amount.
func usdCentsToUCO(usdCents uint64, ucoUSDPrice float64) uint64 {
	if ucoUSDPrice <= 0 {
		// Degenerate oracle input: fail closed to the maximum reasonable
		// fee rather than dividing by zero or going negative.
		ucoUSDPrice = 0.01
	}
	usd := float64(usdCents) / 100.0
	uco := usd / ucoUSDPrice
	return uint64(uco * ucoSmallestUnitsPerUCO)
}

func byteLen(tx *txtypes.Transaction) int {
	return len(txtypes.SerializePending(tx))
}

func movementCount(tx *txtypes.Transaction) int {
	return len(tx.Data.Ledger.UCO) + len(tx.Data.Ledger.Token)
}

// ComputeFee implements F(tx, uco_usd_price): base + size + movement +
// contract terms, each independently monotonic, so the whole sum is
// non-decreasing in byte_len(tx) and |movements| for a fixed price
// (property 5).
func ComputeFee(tx *txtypes.Transaction, pricing Pricing, ucoUSDPrice float64) uint64 {
	sizeFeeCents := pricing.PerByteUSDCents * uint64(byteLen(tx)) / 100
	movementFeeCents := pricing.PerMovementUSDCents * uint64(movementCount(tx))
	contractFeeCents := uint64(0)
	if len(tx.Data.Code) > 0 {
		contractFeeCents = pricing.ContractUSDCents
	}
	totalCents := pricing.BaseFeeUSDCents + sizeFeeCents + movementFeeCents + contractFeeCents
	return usdCentsToUCO(totalCents, ucoUSDPrice)
}
