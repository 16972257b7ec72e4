// Command ledgersend demonstrates an end-to-end send between two nodes.
//
// Peer transport is kept as an external collaborator with no concrete
// wire implementation in scope, so a real two-process sender and
// daemon can't yet talk to each other; this binary instead runs two
// nodes in-process over peernet.LoopbackTransport and a shared
// mainchain.Memory, the same in-memory doubles the test suite uses, and
// prints the receiver's resulting balance once the send settles.
package main

import (
	"context"
	"flag"
	"log"
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
	amount := flag.Uint64("amount", 100, "amount to mint to the sender and transfer to the receiver")
	blockInterval := flag.Duration("block-interval", 200*time.Millisecond, "block batching interval for both demo nodes")
	flag.Parse()

	mint := &ledger.Transaction{Number: 0, ReceiverID: 0, Amount: *amount}
	genesis := ledger.NewGenesisBlock([]*ledger.Transaction{mint})

	tr := tracker.NewMemory(genesis)
	registry := ledger.NewRegistry()
	transport := peernet.NewLoopbackTransport()
	mc := mainchain.NewMemory()
	cacheSender := mainchain.NewAbstractCache(mc)
	cacheReceiver := mainchain.NewAbstractCache(mc)

	sender := mustRegister(tr, registry, "sender")
	receiver := mustRegister(tr, registry, "receiver")

	senderStore, err := store.Open(sender, registry, tr)
	if err != nil {
		log.Fatalf("opening sender store: %v", err)
	}
	receiverStore, err := store.Open(receiver, registry, tr)
	if err != nil {
		log.Fatalf("opening receiver store: %v", err)
	}

	senderDaemon := ledgerd.NewDaemon(senderStore, cacheSender, transport, *blockInterval)
	receiverDaemon := ledgerd.NewDaemon(receiverStore, cacheReceiver, transport, *blockInterval)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	go func() {
		if err := senderDaemon.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("sender daemon: %v", err)
		}
	}()
	go func() {
		if err := receiverDaemon.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("receiver daemon: %v", err)
		}
	}()

	// Give the cache updaters a moment to complete their initial sync.
	time.Sleep(100 * time.Millisecond)

	tx := &ledger.Transaction{
		Number:     1,
		SenderID:   &sender.ID,
		ReceiverID: receiver.ID,
		Amount:     *amount,
		Sources:    []ledger.SourceRef{mint.ID()},
	}
	tx.Signature = ledgercrypto.Sign(sender.PrivateKey, tx.CanonicalBytes())

	if err := senderDaemon.Send(ctx, tx, receiver.ID); err != nil {
		log.Fatalf("sending transaction: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		balance, err := receiverStore.Balance(ctx)
		if err != nil {
			log.Fatalf("reading receiver balance: %v", err)
		}
		if balance >= *amount {
			log.Printf("receiver %d balance: %d", receiver.ID, balance)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	log.Fatal("timed out waiting for the transaction to settle")
}

func mustRegister(tr *tracker.Memory, registry *ledger.Registry, label string) *ledger.Node {
	pub, priv, err := ledgercrypto.Generate()
	if err != nil {
		log.Fatalf("generating %s keypair: %v", label, err)
	}
	n, err := tr.RegisterNode(context.Background(), pub, label)
	if err != nil {
		log.Fatalf("registering %s: %v", label, err)
	}
	n.PrivateKey = priv
	registry.Put(n)
	return n
}
