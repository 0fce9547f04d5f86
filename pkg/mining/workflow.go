// Copyright 2025 Archethic Network
//
// Workflow is the per-transaction state machine spec.md §4.3/§5 describes:
// one process per tx.address, event-driven over buffered channels, exactly
// the teacher's attestation.Service shape (goroutines + channel fan-in,
// waits bounded by time.NewTimer deadlines) generalized from one-shot attestation
// collection to the full coordinator/cross-validator protocol.

package mining

import (
	"context"
	"sync"
	"time"

	"github.com/archethic-network/mining-core/pkg/election"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

// Workflow owns the mining state machine for one transaction address.
type Workflow struct {
	deps *Deps

	address     []byte
	tx          *txtypes.Transaction
	timestamp   time.Time
	committee   []election.Node
	chainStore  []election.Node
	beaconStore []election.Node
	ioStore     []election.Node
	welcome     welcomeNode
	self        election.Node
	selfIndex   int
	role        Role

	contextCh   chan contextMsg
	crossValCh  chan txtypes.CrossValidate
	crossDoneCh chan txtypes.CrossValidationDone
	ackCh       chan txtypes.AcknowledgeStorage

	mu    sync.Mutex
	state State

	cancel context.CancelFunc
	done   chan struct{}
}

type welcomeNode struct {
	PublicKey []byte
	Endpoint  string
}

type contextMsg struct {
	from    election.Node
	context txtypes.AddMiningContext
}

func (w *Workflow) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// State returns the workflow's current FSM state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Address is the transaction address this workflow drives.
func (w *Workflow) Address() []byte { return w.address }

// Done reports whether the workflow has reached a terminal state.
func (w *Workflow) Done() <-chan struct{} { return w.done }

// DeliverMiningContext feeds an inbound AddMiningContext to the coordinator.
func (w *Workflow) DeliverMiningContext(from election.Node, ctx txtypes.AddMiningContext) {
	select {
	case w.contextCh <- contextMsg{from: from, context: ctx}:
	case <-w.done:
	}
}

// DeliverCrossValidate feeds an inbound CrossValidate to a cross-validator.
func (w *Workflow) DeliverCrossValidate(msg txtypes.CrossValidate) {
	select {
	case w.crossValCh <- msg:
	case <-w.done:
	}
}

// DeliverCrossValidationDone feeds one committee member's stamp to every
// other member collecting stamps (coordinator and cross-validators alike).
func (w *Workflow) DeliverCrossValidationDone(msg txtypes.CrossValidationDone) {
	select {
	case w.crossDoneCh <- msg:
	case <-w.done:
	}
}

// DeliverAcknowledgeStorage feeds an inbound storage acknowledgment to the
// validator awaiting its replication sub-tree's quorum.
func (w *Workflow) DeliverAcknowledgeStorage(msg txtypes.AcknowledgeStorage) {
	select {
	case w.ackCh <- msg:
	case <-w.done:
	}
}

// run dispatches to the standalone or distributed protocol and always
// finishes by closing w.done, regardless of outcome, so the registry can
// reclaim the entry (spec.md §3's "terminal states destroy it").
func (w *Workflow) run(ctx context.Context) {
	defer close(w.done)

	switch w.role {
	case RoleStandalone:
		w.runStandalone(ctx)
	case RoleCoordinator:
		w.runCoordinator(ctx)
	case RoleCrossValidator:
		w.runCrossValidator(ctx)
	}
}

// runStandalone implements spec.md §4.3's bootstrap path: committee size 1,
// no cross-validation, no atomic commitment step.
func (w *Workflow) runStandalone(ctx context.Context) {
	w.setState(StatePendingValidated)

	price, err := priceAt(ctx, w.deps.Oracle, w.timestamp)
	if err != nil {
		w.abort(ctx, ErrorNetworkIssue, "oracle price unavailable: %v", err)
		return
	}

	stamp, err := assembleValidationStamp(ctx, w.deps.Storage, stampInputs{
		tx: w.tx, timestamp: w.timestamp, originKeys: w.deps.Snapshot.Load().OriginKeys,
		pricing: w.deps.Pricing, ucoUSDPrice: price, protocolVersion: 1,
	})
	if err != nil {
		w.abort(ctx, ErrorInvalidTransaction, "assemble stamp: %v", err)
		return
	}
	w.signStamp(stamp)
	w.tx.ValidationStamp = stamp
	w.tx.CrossValidationStamps = nil

	w.setState(StateValidated)
	w.setState(StateCommitted)

	tree := buildReplicationTree(w.committee, w.chainStore, w.beaconStore, w.ioStore)
	w.replicate(ctx, tree)
}
