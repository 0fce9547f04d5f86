// Copyright 2025 Archethic Network
//
// Replication phase: spec.md §4.3's post-commit step. Each validator
// broadcasts to its assigned sub-tree (its row of the replication matrix),
// waits for AcknowledgeStorage from its chain-storage nodes up to the
// quorum, and on success publishes a beacon attestation. The welcome node
// is sent a message only when the workflow aborts; on success it is not
// notified.

package mining

import (
	"context"
	"errors"
	"time"

	"github.com/archethic-network/mining-core/pkg/beacon"
	"github.com/archethic-network/mining-core/pkg/election"
	"github.com/archethic-network/mining-core/pkg/keystore"
	"github.com/archethic-network/mining-core/pkg/replication"
	"github.com/archethic-network/mining-core/pkg/transport"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

var errReplicationTimeout = errors.New("mining: replication quorum not reached in time")

func buildReplicationTree(committee, chainStore, beaconStore, ioStore []election.Node) txtypes.ReplicationTree {
	return replication.BuildTree(committee, chainStore, beaconStore, ioStore)
}

// replicationTreesEqual reports whether two replication trees assign every
// storage node to the same validator row, used by a cross-validator to
// catch a coordinator that assembled a CrossValidate with a tampered or
// stale tree.
func replicationTreesEqual(a, b txtypes.ReplicationTree) bool {
	return bitstringRowsEqual(a.Chain, b.Chain) &&
		bitstringRowsEqual(a.Beacon, b.Beacon) &&
		bitstringRowsEqual(a.IO, b.IO)
}

func bitstringRowsEqual(a, b []txtypes.Bitstring) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Len() != b[i].Len() || string(a[i].Bytes()) != string(b[i].Bytes()) {
			return false
		}
	}
	return true
}

// nodesForRow selects the storage nodes whose bit is set in row.
func nodesForRow(row txtypes.Bitstring, nodes []election.Node) []election.Node {
	out := make([]election.Node, 0, row.Count())
	for i, n := range nodes {
		if row.Get(i) {
			out = append(out, n)
		}
	}
	return out
}

func (w *Workflow) signStamp(stamp *txtypes.ValidationStamp) {
	body := txtypes.SerializeValidationStampForSignature(stamp)
	stamp.Signature = w.deps.DailyNonce.SignValidationStamp(body).Bytes()
}

// abort transitions the workflow to Aborted, surfaces the error to the
// welcome node, and records the abort reason in metrics.
func (w *Workflow) abort(ctx context.Context, kind ErrorKind, format string, args ...any) {
	w.setState(StateAborted)
	if w.deps.Metrics != nil {
		w.deps.Metrics.AbortsTotal.WithLabelValues(string(kind)).Inc()
	}
	mErr := newError(kind, format, args...)
	w.deps.Logger.Printf("⚠️ aborting %x: %v", w.address, mErr)

	reason := txtypes.ErrorReasonNetworkIssue
	switch kind {
	case ErrorInvalidTransaction:
		reason = txtypes.ErrorReasonInvalidTransaction
	case ErrorAlreadyExists:
		reason = txtypes.ErrorReasonTransactionAlreadyExists
	}
	w.notifyWelcome(ctx, txtypes.ErrorMessage{Reason: reason, Address: w.address, Detail: mErr.Detail})
}

func (w *Workflow) notifyWelcome(ctx context.Context, msg txtypes.ErrorMessage) {
	if w.welcome.Endpoint == "" {
		return
	}
	peer := transport.Peer{PublicKey: w.welcome.PublicKey, Endpoint: w.welcome.Endpoint}
	_, _ = w.deps.Transport.SendMessage(ctx, peer, "error", msg, w.deps.StampTimeout)
}

// replicate drives spec.md §4.3's replication phase for this validator's
// row of tree, then — on quorum — marks the workflow Done.
func (w *Workflow) replicate(ctx context.Context, tree txtypes.ReplicationTree) {
	w.setState(StateReplicated)
	started := time.Now()

	chainNodes := nodesForRow(tree.Chain[w.selfIndex], w.chainStore)
	beaconNodes := nodesForRow(tree.Beacon[w.selfIndex], w.beaconStore)
	ioNodes := nodesForRow(tree.IO[w.selfIndex], w.ioStore)

	chainPeers := make([]transport.Peer, 0, len(chainNodes))
	for _, n := range chainNodes {
		chainPeers = append(chainPeers, peerFromNode(n))
	}
	beaconPeers := make([]transport.Peer, 0, len(beaconNodes))
	for _, n := range beaconNodes {
		beaconPeers = append(beaconPeers, peerFromNode(n))
	}
	ioPeers := make([]transport.Peer, 0, len(ioNodes))
	for _, n := range ioNodes {
		ioPeers = append(ioPeers, peerFromNode(n))
	}

	replyTo := txtypes.ReplyTarget{PublicKey: w.deps.Self.PublicKey(), Endpoint: w.deps.SelfEndpoint}
	w.deps.Transport.BroadcastMessage(ctx, chainPeers, "replicate-transaction-chain", txtypes.ReplicateTransactionChain{Transaction: *w.tx, ReplyTo: replyTo})
	w.deps.Transport.BroadcastMessage(ctx, beaconPeers, "replicate-transaction", txtypes.ReplicateTransaction{Transaction: *w.tx, ReplyTo: replyTo})
	w.deps.Transport.BroadcastMessage(ctx, ioPeers, "replicate-transaction", txtypes.ReplicateTransaction{Transaction: *w.tx, ReplyTo: replyTo})

	quorum := replicationQuorum(len(chainNodes))
	acked, err := w.awaitAcknowledgeQuorum(ctx, quorum, chainNodes)
	if err != nil {
		w.abort(ctx, ErrorReplicationTimeout, "replication timeout: %v", err)
		return
	}

	if w.deps.Metrics != nil {
		w.deps.Metrics.ReplicationAckLatency.Observe(time.Since(started).Seconds())
		w.deps.Metrics.CommitsTotal.Inc()
	}

	if err := w.deps.Storage.WriteTransaction(ctx, w.tx); err != nil {
		w.deps.Logger.Printf("⚠️ local write failed for %x: %v", w.address, err)
	}

	if w.deps.Beacon != nil {
		att := beacon.ReplicationAttestation{
			TransactionAddress: w.address,
			GenesisAddress:     previousAddress(w.tx),
			ValidatorPublicKey: w.deps.Self.PublicKey(),
			ReplicatedAt:       time.Now(),
			ChainStorageCount:  len(chainNodes),
			AcknowledgedCount:  acked,
		}
		if err := w.deps.Beacon.PublishAttestation(ctx, att); err != nil {
			w.deps.Logger.Printf("⚠️ beacon attestation failed for %x: %v", w.address, err)
		}
	}

	w.setState(StateDone)
	w.deps.Logger.Printf("✅ %x replicated (%d/%d chain-storage acks)", w.address, acked, len(chainNodes))
}

func (w *Workflow) awaitAcknowledgeQuorum(ctx context.Context, quorum int, chainNodes []election.Node) (int, error) {
	if quorum == 0 {
		return 0, nil
	}
	chainKeys := make(map[string]bool, len(chainNodes))
	for _, n := range chainNodes {
		chainKeys[keyHex(n.PublicKey)] = true
	}
	deadline := time.NewTimer(w.deps.ReplicationTimeout)
	defer deadline.Stop()

	seen := make(map[string]bool)
	for len(seen) < quorum {
		select {
		case ack := <-w.ackCh:
			if chainKeys[keyHex(ack.NodePublicKey)] && keystore.VerifyEd25519(ack.NodePublicKey, ack.Address, ack.Signature) {
				seen[keyHex(ack.NodePublicKey)] = true
			}
		case <-deadline.C:
			return len(seen), errReplicationTimeout
		case <-ctx.Done():
			return len(seen), ctx.Err()
		}
	}
	return len(seen), nil
}
