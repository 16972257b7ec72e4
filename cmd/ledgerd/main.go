// Command ledgerd bootstraps one ledger node: it loads (or generates) a
// keypair, registers with a tracker, opens its LocalStore, and runs the
// Daemon until interrupted: parse flags, assemble the node's
// collaborators, start its background workers, serve.
//
// A node's counterparties and peer transport are kept as external
// collaborators; this binary wires in the in-memory doubles
// (tracker.Memory, peernet.LoopbackTransport) that stand in for them,
// and a real HTTP client for the one external dependency that does
// have a concrete implementation here: the main chain.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/scaleledger/scaleledger/ledger"
	"github.com/scaleledger/scaleledger/ledgercrypto"
	"github.com/scaleledger/scaleledger/ledgerd"
	"github.com/scaleledger/scaleledger/mainchain"
	"github.com/scaleledger/scaleledger/peernet"
	"github.com/scaleledger/scaleledger/store"
	"github.com/scaleledger/scaleledger/tracker"
)

func main() {
	var (
		mainChainURL  = flag.String("mainchain", "http://localhost:2423", "main chain RPC base URL")
		blockInterval = flag.Duration("block-interval", 5*time.Second, "outgoing block batching interval")
		seedHex       = flag.String("seed", "", "hex-encoded 32-byte node identity seed; random if empty")
		addr          = flag.String("addr", "localhost:2423", "this node's advertised peer address")
		mintAmount    = flag.Uint64("mint", 0, "amount to mint to this node at genesis (single-node demo only)")
	)
	flag.Parse()

	pub, priv, err := loadOrGenerateKey(*seedHex)
	if err != nil {
		log.Fatalf("loading node identity: %v", err)
	}

	var mints []*ledger.Transaction
	if *mintAmount > 0 {
		mints = append(mints, &ledger.Transaction{Number: 0, ReceiverID: 0, Amount: *mintAmount})
	}
	genesis := ledger.NewGenesisBlock(mints)

	tr := tracker.NewMemory(genesis)
	own, err := tr.RegisterNode(context.Background(), pub, *addr)
	if err != nil {
		log.Fatalf("registering node: %v", err)
	}
	own.PrivateKey = priv

	registry := ledger.NewRegistry()
	localStore, err := store.Open(own, registry, tr)
	if err != nil {
		log.Fatalf("opening local store: %v", err)
	}
	defer localStore.Close()

	mcClient := mainchain.NewHTTPClient(*mainChainURL, new(http.Client))
	cache := mainchain.NewAbstractCache(mcClient)
	transport := peernet.NewLoopbackTransport()

	d := ledgerd.NewDaemon(localStore, cache, transport, *blockInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("node %d listening as %s", own.ID, own.Address)
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("ledgerd: %v", err)
	}
}

func loadOrGenerateKey(seedHex string) (ledgercrypto.PublicKey, ledgercrypto.PrivateKey, error) {
	if seedHex == "" {
		return ledgercrypto.Generate()
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, nil, err
	}
	return ledgercrypto.FromSeed(seed)
}
