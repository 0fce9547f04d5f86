// Copyright 2025 Archethic Network
//
// Shared workflow types: spec.md §3 lifecycle states, §4.3's coordinator
// vs cross-validator roles, and the Deps bundle every Workflow closes over
// — the collaborators named in spec.md §6, wired the way the teacher wires
// its attestation.Service dependencies (repos, signer, peer endpoints,
// timeouts) into one Config-shaped struct.

package mining

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/archethic-network/mining-core/pkg/beacon"
	"github.com/archethic-network/mining-core/pkg/election"
	"github.com/archethic-network/mining-core/pkg/keystore"
	"github.com/archethic-network/mining-core/pkg/kvsnapshot"
	"github.com/archethic-network/mining-core/pkg/ledger"
	"github.com/archethic-network/mining-core/pkg/metrics"
	"github.com/archethic-network/mining-core/pkg/oracle"
	"github.com/archethic-network/mining-core/pkg/storage"
	"github.com/archethic-network/mining-core/pkg/transport"
)

// State is one of the finite-state-machine states spec.md §3 names.
type State string

const (
	StateInit             State = "init"
	StatePendingValidated State = "pending_validated"
	StateContextCollected State = "context_collected"
	StateValidated        State = "validated" // coordinator only
	StateCommitted        State = "committed"
	StateReplicated       State = "replicated"
	StateDone             State = "done"
	StateAborted          State = "aborted"
)

// Role distinguishes the coordinator (first-ranked committee member) from
// every other cross-validator.
type Role int

const (
	RoleStandalone Role = iota
	RoleCoordinator
	RoleCrossValidator
)

// Deps bundles every external collaborator a Workflow needs, matching the
// external-interfaces list in spec.md §6.
type Deps struct {
	Self         *keystore.NodeIdentity
	SelfEndpoint string // this node's externally reachable http://host:port, stamped into replication ReplyTo
	DailyNonce   *keystore.DailyNonceHandle

	Storage   storage.Engine
	Transport transport.Transport
	Oracle    oracle.Source
	Beacon    beacon.Publisher
	Metrics   *metrics.Metrics
	Snapshot  *kvsnapshot.Store

	Pricing     ledger.Pricing
	Constraints election.Constraints

	MaxContentSize     int
	ContextTimeout     time.Duration
	StampTimeout       time.Duration
	ReplicationTimeout time.Duration
	ResponsivenessStep time.Duration // delay before the next-ranked validator retries

	Logger Logger
}

// Logger is the minimal logging surface Workflow uses, satisfied by
// *log.Logger, matching the teacher's per-package log.New(..., "[X] ",
// log.LstdFlags) convention.
type Logger interface {
	Printf(format string, v ...any)
}

// replicationQuorum implements spec.md §4.3's ceil(2/3 * |chain_storage|)
// acknowledgment threshold.
func replicationQuorum(chainStorageCount int) int {
	if chainStorageCount == 0 {
		return 0
	}
	return (2*chainStorageCount + 2) / 3
}

// GovernanceReport is the malicious-validator surfacing value spec.md
// §4.3 calls for on abort: the committee members whose stamps disagree
// with (or are absent from) the honest majority. ID lets operators
// correlate the report with logs and the eventual governance ticket
// without parsing the address back out of a log line.
type GovernanceReport struct {
	ID          string
	Address     []byte
	SuspectKeys [][]byte
	Reason      string
}

func peerFromNode(n election.Node) transport.Peer {
	port := n.Port
	if port <= 0 {
		port = 9000
	}
	return transport.Peer{
		PublicKey: n.PublicKey,
		Endpoint:  "http://" + n.IPAddress + ":" + strconv.Itoa(port),
	}
}

func keyHex(key []byte) string {
	return hex.EncodeToString(key)
}
