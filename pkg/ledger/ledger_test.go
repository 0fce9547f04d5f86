package ledger

import (
	"testing"
	"time"

	"github.com/archethic-network/mining-core/pkg/txtypes"
)

func sampleTx(content []byte, movements int, withCode bool) *txtypes.Transaction {
	tx := &txtypes.Transaction{
		Address: []byte("addr"),
		Type:    txtypes.TypeTransfer,
		Data: txtypes.TransactionData{
			Content: content,
		},
		PreviousPublicKey: []byte("prevkey"),
	}
	for i := 0; i < movements; i++ {
		tx.Data.Ledger.UCO = append(tx.Data.Ledger.UCO, txtypes.UCOTransfer{To: []byte("to"), Amount: 1})
	}
	if withCode {
		tx.Data.Code = []byte("condition inherit: true")
	}
	return tx
}

func TestFeeMonotonicInSize(t *testing.T) {
	pricing := DefaultPricing()
	small := ComputeFee(sampleTx([]byte("x"), 0, false), pricing, 1.0)
	big := ComputeFee(sampleTx(make([]byte, 10_000), 0, false), pricing, 1.0)
	if big < small {
		t.Fatalf("expected fee to be non-decreasing in byte length: small=%d big=%d", small, big)
	}
}

func TestFeeMonotonicInMovements(t *testing.T) {
	pricing := DefaultPricing()
	few := ComputeFee(sampleTx([]byte("x"), 1, false), pricing, 1.0)
	many := ComputeFee(sampleTx([]byte("x"), 10, false), pricing, 1.0)
	if many < few {
		t.Fatalf("expected fee to be non-decreasing in movement count: few=%d many=%d", few, many)
	}
}

func TestFeeDegenerateOraclePriceFailsClosed(t *testing.T) {
	pricing := DefaultPricing()
	fee := ComputeFee(sampleTx([]byte("x"), 0, false), pricing, 0)
	if fee == 0 {
		t.Fatalf("expected a positive fee even with a degenerate oracle price")
	}
}

func TestBuildLedgerOperationsChangeOutputTargetsTxAddress(t *testing.T) {
	utxos := []txtypes.UnspentOutput{
		{From: []byte("genesis"), Type: txtypes.UTXOTypeUCO, Amount: 1000, Timestamp: time.Unix(10, 0)},
	}
	ledger := txtypes.TransactionLedger{
		UCO: []txtypes.UCOTransfer{{To: []byte("recipient"), Amount: 100}},
	}
	ops, err := BuildLedgerOperations(utxos, ledger, 5, []byte("tx-address"), time.Unix(20, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ops.UnspentOutputs) != 1 {
		t.Fatalf("expected exactly one change output, got %d", len(ops.UnspentOutputs))
	}
	change := ops.UnspentOutputs[0]
	if string(change.From) != "tx-address" {
		t.Fatalf("change output must target the transaction's own address, got %q", change.From)
	}
	if change.Amount != 1000-100-5 {
		t.Fatalf("expected change amount %d, got %d", 1000-100-5, change.Amount)
	}
}

func TestBuildLedgerOperationsInsufficientFunds(t *testing.T) {
	utxos := []txtypes.UnspentOutput{
		{From: []byte("genesis"), Type: txtypes.UTXOTypeUCO, Amount: 10, Timestamp: time.Unix(10, 0)},
	}
	ledger := txtypes.TransactionLedger{
		UCO: []txtypes.UCOTransfer{{To: []byte("recipient"), Amount: 1000}},
	}
	_, err := BuildLedgerOperations(utxos, ledger, 5, []byte("tx-address"), time.Unix(20, 0))
	if err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestBuildLedgerOperationsConsumesMostRecentFirst(t *testing.T) {
	utxos := []txtypes.UnspentOutput{
		{From: []byte("old"), Type: txtypes.UTXOTypeUCO, Amount: 50, Timestamp: time.Unix(1, 0)},
		{From: []byte("new"), Type: txtypes.UTXOTypeUCO, Amount: 200, Timestamp: time.Unix(99, 0)},
	}
	ledger := txtypes.TransactionLedger{
		UCO: []txtypes.UCOTransfer{{To: []byte("recipient"), Amount: 50}},
	}
	ops, err := BuildLedgerOperations(utxos, ledger, 0, []byte("tx-address"), time.Unix(100, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only the newest (200) output should have been needed; its change is 150.
	if len(ops.UnspentOutputs) != 1 || ops.UnspentOutputs[0].Amount != 150 {
		t.Fatalf("expected LIFO consumption to leave change 150, got %+v", ops.UnspentOutputs)
	}
}
