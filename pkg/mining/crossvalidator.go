// Copyright 2025 Archethic Network
//
// Cross-validator role: spec.md §4.3 step 2. Sends its own availability
// view to the coordinator, waits for CrossValidate, independently
// recomputes the ValidationStamp to detect inconsistencies, then
// broadcasts its counter-signature and joins the same atomic-commitment
// wait the coordinator runs.

package mining

import (
	"context"
	"errors"
	"time"

	"github.com/archethic-network/mining-core/pkg/election"
	"github.com/archethic-network/mining-core/pkg/transport"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

var errCrossValidateTimeout = errors.New("mining: no cross-validate received in time")

func (w *Workflow) runCrossValidator(ctx context.Context) {
	w.setState(StatePendingValidated)

	w.sendMiningContext(ctx)

	cv, err := w.awaitCrossValidate(ctx)
	if err != nil {
		if errors.Is(err, errCrossValidateTimeout) && w.isNextResponsiveFallback() {
			w.deps.Logger.Printf("🔄 %x coordinator unresponsive, rank %d taking over", w.address, w.selfIndex)
			w.runCoordinator(ctx)
			return
		}
		w.abort(ctx, ErrorNetworkIssue, "await cross-validate: %v", err)
		return
	}
	w.setState(StateContextCollected)

	price, err := priceAt(ctx, w.deps.Oracle, w.timestamp)
	if err != nil {
		w.abort(ctx, ErrorNetworkIssue, "oracle price unavailable: %v", err)
		return
	}

	recomputed, err := assembleValidationStamp(ctx, w.deps.Storage, stampInputs{
		tx: w.tx, timestamp: w.timestamp, originKeys: w.deps.Snapshot.Load().OriginKeys,
		pricing: w.deps.Pricing, ucoUSDPrice: price, protocolVersion: cv.ValidationStamp.ProtocolVersion,
	})
	if err != nil {
		w.abort(ctx, ErrorInvalidTransaction, "recompute stamp: %v", err)
		return
	}

	inconsistencies := compareStamps(recomputed, &cv.ValidationStamp, w.deps.DailyNonce.PublicKey())
	recomputedTree := buildReplicationTree(w.committee, w.chainStore, w.beaconStore, w.ioStore)
	if !replicationTreesEqual(recomputedTree, cv.ReplicationTree) {
		inconsistencies = append(inconsistencies, txtypes.InconsistencyReplicationTree)
	}
	own := txtypes.CrossValidationStamp{
		NodePublicKey:   w.deps.Self.PublicKey(),
		Inconsistencies: inconsistencies,
		Signature:       w.deps.Self.Sign(txtypes.SerializeForCrossValidation(&cv.ValidationStamp, inconsistencies)),
	}
	w.setState(StateValidated)

	peers := make([]transport.Peer, 0, len(w.committee)-1)
	for i, n := range w.committee {
		if i != w.selfIndex {
			peers = append(peers, peerFromNode(n))
		}
	}
	w.deps.Transport.BroadcastMessage(ctx, peers, "cross-validation-done", txtypes.CrossValidationDone{
		Address:              w.address,
		CrossValidationStamp: own,
	})

	stamps, err := w.collectCrossValidationStamps(ctx, own)
	if err != nil {
		w.abort(ctx, ErrorNetworkIssue, "collect cross-validation stamps: %v", err)
		return
	}

	if !allAtomicCommit(stamps) {
		report := buildGovernanceReport(w.address, w.committee, stamps)
		w.deps.Logger.Printf("⚠️ governance report %s: %d suspect keys (%s)", report.ID, len(report.SuspectKeys), report.Reason)
		w.abort(ctx, ErrorInconsistency, "atomic commitment failed: %s", report.Reason)
		return
	}

	stamp := cv.ValidationStamp
	w.tx.ValidationStamp = &stamp
	w.tx.CrossValidationStamps = stamps
	w.setState(StateCommitted)
	w.replicate(ctx, cv.ReplicationTree)
}

// sendMiningContext reports this node's availability view to every other
// committee member, not only the ranked coordinator: spec.md §4.3's
// node-responsiveness fallback lets a later-ranked member step in as
// coordinator if the first never acts, and it can only do that with the
// same context the original coordinator would have collected.
func (w *Workflow) sendMiningContext(ctx context.Context) {
	msg := txtypes.AddMiningContext{
		Address:                 w.address,
		ValidationNodePublicKey: w.deps.Self.PublicKey(),
		ChainStorageNodesView:   availabilityView(w.chainStore),
		BeaconStorageNodesView:  availabilityView(w.beaconStore),
		IOStorageNodesView:      availabilityView(w.ioStore),
	}
	peers := make([]transport.Peer, 0, len(w.committee)-1)
	for i, n := range w.committee {
		if i != w.selfIndex {
			peers = append(peers, peerFromNode(n))
		}
	}
	w.deps.Transport.BroadcastMessage(ctx, peers, "add-mining-context", msg)
}

// isNextResponsiveFallback reports whether this node is eligible to take
// over as coordinator after a CrossValidate timeout. Every cross-validator
// is eligible; awaitCrossValidate staggers each rank's deadline by
// ResponsivenessStep so only the lowest-ranked idle member actually acts
// before a CrossValidate broadcast from a just-promoted peer arrives.
func (w *Workflow) isNextResponsiveFallback() bool {
	return w.selfIndex >= 1
}

// availabilityView builds the bitstring this node reports for one storage
// class, reflecting which elected nodes it currently observes as reachable.
func availabilityView(nodes []election.Node) txtypes.Bitstring {
	view := txtypes.NewBitstring(len(nodes))
	for i, n := range nodes {
		view.Set(i, n.Available)
	}
	return view
}

// awaitCrossValidate waits for the coordinator's broadcast. Rank 1 (the
// first cross-validator) uses the base timeout; each lower rank adds one
// more ResponsivenessStep, so a stalled coordinator is taken over by
// exactly the next-ranked member before anyone further down times out.
func (w *Workflow) awaitCrossValidate(ctx context.Context) (txtypes.CrossValidate, error) {
	wait := w.deps.StampTimeout + time.Duration(w.selfIndex-1)*w.deps.ResponsivenessStep
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	select {
	case msg := <-w.crossValCh:
		return msg, nil
	case <-deadline.C:
		return txtypes.CrossValidate{}, errCrossValidateTimeout
	case <-ctx.Done():
		return txtypes.CrossValidate{}, ctx.Err()
	}
}
