// Copyright 2025 Archethic Network
//
// Server is the HTTP health/status/debug surface spec.md's module layout
// calls for, plus the inbound leg of pkg/transport's HTTP wire format: the
// /mining/{message_type} routes peer nodes POST to. Grounded in the
// teacher's pkg/server handler-struct-per-concern shape
// (bulk_handlers.go, proof_handlers.go), generalized from proof-export
// endpoints to mining message endpoints.

package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/archethic-network/mining-core/pkg/keystore"
	"github.com/archethic-network/mining-core/pkg/mining"
	"github.com/archethic-network/mining-core/pkg/storage"
	"github.com/archethic-network/mining-core/pkg/transport"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

// Server exposes the validator process's HTTP surface: inbound mining
// messages, health, and status. It also plays the storage-node role:
// ReplicateTransaction(Chain) handlers persist through storage.Engine and
// sign an AcknowledgeStorage the way any elected storage node must,
// regardless of whether this process is also mining as a committee member.
type Server struct {
	mux       *http.ServeMux
	registry  *mining.Registry
	storage   storage.Engine
	self      *keystore.NodeIdentity
	transport transport.Transport
	logger    *log.Logger
	nodeID    string
}

// New builds a Server wired to registry for inbound mining messages and to
// eng/self/t for the storage-node acknowledgment path.
func New(registry *mining.Registry, eng storage.Engine, self *keystore.NodeIdentity, t transport.Transport, nodeID string) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		registry:  registry,
		storage:   eng,
		self:      self,
		transport: t,
		logger:    log.New(log.Writer(), "[Server] ", log.LstdFlags),
		nodeID:    nodeID,
	}
	s.routes()
	return s
}

// Handler returns the composed http.Handler to pass to http.ListenAndServe.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/mining/start-mining", s.handleStartMining)
	s.mux.HandleFunc("/mining/add-mining-context", s.handleAddMiningContext)
	s.mux.HandleFunc("/mining/cross-validate", s.handleCrossValidate)
	s.mux.HandleFunc("/mining/cross-validation-done", s.handleCrossValidationDone)
	s.mux.HandleFunc("/mining/replicate-transaction-chain", s.handleReplicateTransactionChain)
	s.mux.HandleFunc("/mining/replicate-transaction", s.handleReplicateTransaction)
	s.mux.HandleFunc("/mining/acknowledge-storage", s.handleAcknowledgeStorage)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "node_id": s.nodeID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":          s.nodeID,
		"active_workflows": s.registry.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func (s *Server) handleStartMining(w http.ResponseWriter, r *http.Request) {
	var msg txtypes.StartMining
	if !s.decodeBody(w, r, &msg) {
		return
	}
	if err := s.registry.StartMining(r.Context(), msg); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "mining_started"})
}

func (s *Server) handleAddMiningContext(w http.ResponseWriter, r *http.Request) {
	var msg txtypes.AddMiningContext
	if !s.decodeBody(w, r, &msg) {
		return
	}
	if err := s.registry.DeliverMiningContext(msg); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func (s *Server) handleCrossValidate(w http.ResponseWriter, r *http.Request) {
	var msg txtypes.CrossValidate
	if !s.decodeBody(w, r, &msg) {
		return
	}
	if err := s.registry.DeliverCrossValidate(msg); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func (s *Server) handleCrossValidationDone(w http.ResponseWriter, r *http.Request) {
	var msg txtypes.CrossValidationDone
	if !s.decodeBody(w, r, &msg) {
		return
	}
	if err := s.registry.DeliverCrossValidationDone(msg); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

// handleReplicateTransactionChain plays this node's chain-storage role: it
// persists the full transaction record and acknowledges back to the
// validator that asked for replication.
func (s *Server) handleReplicateTransactionChain(w http.ResponseWriter, r *http.Request) {
	var msg txtypes.ReplicateTransactionChain
	if !s.decodeBody(w, r, &msg) {
		return
	}
	s.storeAndAcknowledge(r.Context(), &msg.Transaction, msg.ReplyTo)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

// handleReplicateTransaction plays this node's beacon- or I/O-storage role.
func (s *Server) handleReplicateTransaction(w http.ResponseWriter, r *http.Request) {
	var msg txtypes.ReplicateTransaction
	if !s.decodeBody(w, r, &msg) {
		return
	}
	s.storeAndAcknowledge(r.Context(), &msg.Transaction, msg.ReplyTo)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

func (s *Server) storeAndAcknowledge(ctx context.Context, tx *txtypes.Transaction, replyTo txtypes.ReplyTarget) {
	if err := s.storage.WriteTransaction(ctx, tx); err != nil {
		s.logger.Printf("⚠️ write transaction %x failed: %v", tx.Address, err)
		return
	}
	ack := txtypes.AcknowledgeStorage{
		Address:       tx.Address,
		NodePublicKey: s.self.PublicKey(),
		Signature:     s.self.Sign(tx.Address),
	}
	if replyTo.Endpoint == "" {
		return
	}
	peer := transport.Peer{PublicKey: replyTo.PublicKey, Endpoint: replyTo.Endpoint}
	if _, err := s.transport.SendMessage(ctx, peer, "acknowledge-storage", ack, 10*time.Second); err != nil {
		s.logger.Printf("⚠️ acknowledge-storage for %x to %s failed: %v", tx.Address, replyTo.Endpoint, err)
	}
}

func (s *Server) handleAcknowledgeStorage(w http.ResponseWriter, r *http.Request) {
	var msg txtypes.AcknowledgeStorage
	if !s.decodeBody(w, r, &msg) {
		return
	}
	if err := s.registry.DeliverAcknowledgeStorage(msg); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}
