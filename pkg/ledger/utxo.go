// Copyright 2025 Archethic Network
//
// UTXO consumption: spec.md §4.4's LIFO input-selection rule. Given the
// chain's current unspent outputs and the movements a transaction declares
// (plus its fee), BuildLedgerOperations resolves which outputs are consumed
// and what change output, if any, is produced back to the chain.

package ledger

import (
	"errors"
	"sort"
	"time"

	"github.com/archethic-network/mining-core/pkg/txtypes"
)

// ErrInsufficientFunds is returned when the chain's available UTXOs cannot
// cover the requested movements plus fee.
var ErrInsufficientFunds = errors.New("ledger: insufficient unspent outputs to cover movements and fee")

// sortLIFO orders unspent outputs most-recent-first, so consumption always
// spends the newest output first — deterministic across every committee
// member that was handed the same UTXO set.
func sortLIFO(utxos []txtypes.UnspentOutput) []txtypes.UnspentOutput {
	sorted := make([]txtypes.UnspentOutput, len(utxos))
	copy(sorted, utxos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	return sorted
}

// BuildLedgerOperations computes the transaction_movements and the change
// unspent output (the consumed inputs are not returned), given the chain's current UTXO
// set, the fee already computed by ComputeFee, and the transaction's own
// declared ledger (property 2: conservation; property 3: address law for the
// change output, which always targets tx.Address).
func BuildLedgerOperations(utxos []txtypes.UnspentOutput, ledger txtypes.TransactionLedger, fee uint64, txAddress []byte, stampTimestamp time.Time) (txtypes.LedgerOperations, error) {
	movements := make([]txtypes.Movement, 0, len(ledger.UCO)+len(ledger.Token))
	var ucoNeeded uint64
	for _, t := range ledger.UCO {
		movements = append(movements, txtypes.Movement{To: t.To, Amount: t.Amount, Type: txtypes.UTXOTypeUCO})
		ucoNeeded += t.Amount
	}
	for _, t := range ledger.Token {
		movements = append(movements, txtypes.Movement{To: t.To, Amount: t.Amount, Type: txtypes.UTXOTypeToken, TokenID: t.Token})
	}
	ucoNeeded += fee

	sorted := sortLIFO(utxos)
	var consumed uint64
	for _, u := range sorted {
		if u.Type != txtypes.UTXOTypeUCO {
			continue
		}
		if consumed >= ucoNeeded {
			break
		}
		consumed += u.Amount
	}
	if consumed < ucoNeeded {
		return txtypes.LedgerOperations{}, ErrInsufficientFunds
	}

	outputs := make([]txtypes.UnspentOutput, 0, 1)
	change := consumed - ucoNeeded
	if change > 0 {
		outputs = append(outputs, txtypes.UnspentOutput{
			From:      txAddress,
			Type:      txtypes.UTXOTypeUCO,
			Amount:    change,
			Timestamp: stampTimestamp,
		})
	}

	return txtypes.LedgerOperations{
		Fee:                  fee,
		TransactionMovements: movements,
		UnspentOutputs:       outputs,
	}, nil
}
