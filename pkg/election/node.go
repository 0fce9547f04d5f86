// Copyright 2025 Archethic Network
//
// Node is the roster entry Election (and the read-mostly snapshot tables in
// pkg/kvsnapshot) operate over.

package election

import "time"

// Node describes one authorized network participant as of the roster
// snapshot Election was given.
type Node struct {
	PublicKey         []byte
	FirstPublicKey    []byte // genesis key of this node's identity chain
	IPAddress         string
	Port              int
	AuthorizationDate time.Time
	GeoPatch          string // coarse geographic diversification bucket
	Available         bool
}
