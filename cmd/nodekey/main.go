// Copyright 2025 Archethic Network
//
// nodekey provisions the key material a validator process needs before it
// can join the network: the long-lived Ed25519 node identity and the
// current day's BLS12-381 daily-nonce key. Run once per node, offline,
// before cmd/validator starts.

package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/archethic-network/mining-core/pkg/keystore"
)

func main() {
	var (
		outDir    = flag.String("out", "./data", "directory to write key files into")
		nodeSeed  = flag.String("node-seed-hex", "", "optional fixed 32-byte hex seed for the node identity (random if empty)")
		nonceSeed = flag.String("daily-nonce-seed-hex", "", "optional fixed hex seed for the daily-nonce BLS key (random if empty)")
	)
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o700); err != nil {
		log.Fatalf("nodekey: create output directory: %v", err)
	}

	seed, err := seedBytes(*nodeSeed, ed25519.SeedSize)
	if err != nil {
		log.Fatalf("nodekey: node seed: %v", err)
	}
	identity, err := keystore.NodeIdentityFromSeed(seed)
	if err != nil {
		log.Fatalf("nodekey: derive node identity: %v", err)
	}
	nodeKeyPath := *outDir + "/node_key.hex"
	if err := writeHexFile(nodeKeyPath, seed); err != nil {
		log.Fatalf("nodekey: write node key: %v", err)
	}
	fmt.Printf("✅ node identity public key: %s\n", hex.EncodeToString(identity.PublicKey()))

	dailyNonceSeed, err := seedBytes(*nonceSeed, 32)
	if err != nil {
		log.Fatalf("nodekey: daily-nonce seed: %v", err)
	}
	priv, pub, err := keystore.GenerateBLSKeyPairFromSeed(dailyNonceSeed)
	if err != nil {
		log.Fatalf("nodekey: generate daily-nonce key: %v", err)
	}
	dailyNoncePath := *outDir + "/daily_nonce.hex"
	if err := writeHexFile(dailyNoncePath, priv.Bytes()); err != nil {
		log.Fatalf("nodekey: write daily-nonce key: %v", err)
	}
	fmt.Printf("✅ daily-nonce public key: %s\n", pub.Hex())

	fmt.Printf("🔄 wrote %s and %s\n", nodeKeyPath, dailyNoncePath)
	fmt.Println("   set ARCH_NODE_KEY_PATH and ARCH_DAILY_NONCE_PATH to these paths")
}

func seedBytes(hexSeed string, size int) ([]byte, error) {
	if hexSeed == "" {
		seed := make([]byte, size)
		if _, err := rand.Read(seed); err != nil {
			return nil, err
		}
		return seed, nil
	}
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("decode hex seed: %w", err)
	}
	return seed, nil
}

func writeHexFile(path string, data []byte) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(data)), 0o600)
}
