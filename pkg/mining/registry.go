// Copyright 2025 Archethic Network
//
// Registry owns the set of in-flight Workflows, one per transaction
// address, the way the teacher's attestation.Service keeps one in-flight
// request map keyed by proof ID. StartMining spawns a workflow after
// recomputing the election locally (spec.md §4.1/§4.3 step 0) and running
// pending-transaction validation; a conflicting StartMining for an address
// already mining cancels the stale workflow if the new one's election is
// newer (spec.md §3's single-winner rule).

package mining

import (
	"context"
	"fmt"
	"sync"

	"github.com/archethic-network/mining-core/pkg/election"
	"github.com/archethic-network/mining-core/pkg/txtypes"
	"github.com/archethic-network/mining-core/pkg/validation"
)

// Registry tracks the Workflow currently mining each transaction address.
type Registry struct {
	deps *Deps

	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewRegistry builds an empty Registry closing over deps.
func NewRegistry(deps *Deps) *Registry {
	return &Registry{deps: deps, workflows: make(map[string]*Workflow)}
}

// Count reports how many workflows are currently in flight.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workflows)
}

// Get returns the in-flight workflow for address, if any.
func (r *Registry) Get(address []byte) (*Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[string(address)]
	return w, ok
}

func (r *Registry) remove(address []byte, w *Workflow) {
	r.mu.Lock()
	if r.workflows[string(address)] == w {
		delete(r.workflows, string(address))
	}
	r.mu.Unlock()
}

// StartMining runs admission validation, recomputes the election locally,
// and spawns a Workflow in the role this node holds within the committee.
// A StartMining for an address already mining replaces the existing
// workflow only if this one's election timestamp is newer (the older,
// now-stale workflow is cancelled); otherwise it is rejected as a
// duplicate so a slow, redundant StartMining never clobbers progress.
func (r *Registry) StartMining(ctx context.Context, msg txtypes.StartMining) error {
	tx := msg.Transaction

	vctx := newValidationContext(ctx, r.deps)
	if err := validation.Validate(&tx, vctx); err != nil {
		return err
	}

	snap := r.deps.Snapshot.Load()
	dailySeed := r.deps.DailyNonce.ElectionSeed(tx.Address, msg.ReceivedAt.Unix())
	result := election.Elect(msg.ReceivedAt, dailySeed, snap.StorageNonce, snap.Roster, r.deps.Constraints)
	if len(result.ValidationCommittee) == 0 {
		return newError(ErrorInvalidElection, "no eligible validators for %x", tx.Address)
	}

	selfKey := r.deps.Self.PublicKey()
	selfIndex := -1
	for i, n := range result.ValidationCommittee {
		if string(n.PublicKey) == string(selfKey) {
			selfIndex = i
			break
		}
	}
	if selfIndex < 0 {
		return newError(ErrorInvalidElection, "this node is not in the elected committee for %x", tx.Address)
	}

	role := RoleCrossValidator
	if len(result.ValidationCommittee) == 1 {
		role = RoleStandalone
	} else if selfIndex == 0 {
		role = RoleCoordinator
	}

	if existing, ok := r.Get(tx.Address); ok {
		if !existing.timestamp.Before(msg.ReceivedAt) {
			return newError(ErrorAlreadyExists, "transaction %x already mining", tx.Address)
		}
		existing.cancel()
		<-existing.Done()
	}

	wfCtx, cancel := context.WithCancel(context.Background())
	txCopy := tx
	w := &Workflow{
		deps:        r.deps,
		address:     tx.Address,
		tx:          &txCopy,
		timestamp:   msg.ReceivedAt,
		committee:   result.ValidationCommittee,
		chainStore:  result.ChainStorage,
		beaconStore: result.BeaconStorage,
		ioStore:     result.IOStorage,
		welcome:     resolveWelcomeNode(msg.WelcomeNodePublicKey, snap.Roster),
		self:        result.ValidationCommittee[selfIndex],
		selfIndex:   selfIndex,
		role:        role,
		contextCh:   make(chan contextMsg, len(result.ValidationCommittee)),
		crossValCh:  make(chan txtypes.CrossValidate, 1),
		crossDoneCh: make(chan txtypes.CrossValidationDone, len(result.ValidationCommittee)),
		ackCh:       make(chan txtypes.AcknowledgeStorage, len(result.ChainStorage)+len(result.BeaconStorage)+len(result.IOStorage)),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	r.mu.Lock()
	r.workflows[string(tx.Address)] = w
	r.mu.Unlock()

	if r.deps.Metrics != nil {
		r.deps.Metrics.WorkflowsActive.Inc()
	}
	go func() {
		w.run(wfCtx)
		r.remove(tx.Address, w)
		if r.deps.Metrics != nil {
			r.deps.Metrics.WorkflowsActive.Dec()
		}
	}()

	r.deps.Logger.Printf("🔄 mining started for %x as %s (committee size %d)", tx.Address, roleString(role), len(result.ValidationCommittee))
	return nil
}

// resolveWelcomeNode looks the welcome node up in the roster so its HTTP
// endpoint is known for the error/completion notifications every workflow
// sends back to it.
func resolveWelcomeNode(pubkey []byte, roster []election.Node) welcomeNode {
	for _, n := range roster {
		if string(n.PublicKey) == string(pubkey) {
			p := peerFromNode(n)
			return welcomeNode{PublicKey: pubkey, Endpoint: p.Endpoint}
		}
	}
	return welcomeNode{PublicKey: pubkey}
}

func roleString(r Role) string {
	switch r {
	case RoleStandalone:
		return "standalone"
	case RoleCoordinator:
		return "coordinator"
	case RoleCrossValidator:
		return "cross_validator"
	default:
		return fmt.Sprintf("role(%d)", r)
	}
}

// DeliverMiningContext routes an inbound AddMiningContext to its workflow.
func (r *Registry) DeliverMiningContext(msg txtypes.AddMiningContext) error {
	w, ok := r.Get(msg.Address)
	if !ok {
		return newError(ErrorInvalidTransaction, "no in-flight workflow for %x", msg.Address)
	}
	var from election.Node
	for _, n := range w.committee {
		if string(n.PublicKey) == string(msg.ValidationNodePublicKey) {
			from = n
			break
		}
	}
	w.DeliverMiningContext(from, msg)
	return nil
}

// DeliverCrossValidate routes an inbound CrossValidate to its workflow.
func (r *Registry) DeliverCrossValidate(msg txtypes.CrossValidate) error {
	w, ok := r.Get(msg.Address)
	if !ok {
		return newError(ErrorInvalidTransaction, "no in-flight workflow for %x", msg.Address)
	}
	w.DeliverCrossValidate(msg)
	return nil
}

// DeliverCrossValidationDone routes an inbound CrossValidationDone.
func (r *Registry) DeliverCrossValidationDone(msg txtypes.CrossValidationDone) error {
	w, ok := r.Get(msg.Address)
	if !ok {
		return newError(ErrorInvalidTransaction, "no in-flight workflow for %x", msg.Address)
	}
	w.DeliverCrossValidationDone(msg)
	return nil
}

// DeliverAcknowledgeStorage routes an inbound AcknowledgeStorage.
func (r *Registry) DeliverAcknowledgeStorage(msg txtypes.AcknowledgeStorage) error {
	w, ok := r.Get(msg.Address)
	if !ok {
		return newError(ErrorInvalidTransaction, "no in-flight workflow for %x", msg.Address)
	}
	w.DeliverAcknowledgeStorage(msg)
	return nil
}
