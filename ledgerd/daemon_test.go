package ledgerd

import (
	"context"
	"testing"
	"time"

	"github.com/scaleledger/scaleledger/ledger"
	"github.com/scaleledger/scaleledger/ledgercrypto"
	"github.com/scaleledger/scaleledger/mainchain"
	"github.com/scaleledger/scaleledger/peernet"
	"github.com/scaleledger/scaleledger/store"
	"github.com/scaleledger/scaleledger/tracker"
)

func TestDaemonSendAndReceiveSettlesABalance(t *testing.T) {
	amount := uint64(25)
	mint := &ledger.Transaction{Number: 0, ReceiverID: 0, Amount: amount}
	genesis := ledger.NewGenesisBlock([]*ledger.Transaction{mint})

	tr := tracker.NewMemory(genesis)
	registry := ledger.NewRegistry()
	transport := peernet.NewLoopbackTransport()
	mc := mainchain.NewMemory()

	sender := registerDemoNode(t, tr, registry)
	receiver := registerDemoNode(t, tr, registry)

	senderStore, err := store.Open(sender, registry, tr)
	if err != nil {
		t.Fatal(err)
	}
	defer senderStore.Close()
	receiverStore, err := store.Open(receiver, registry, tr)
	if err != nil {
		t.Fatal(err)
	}
	defer receiverStore.Close()

	senderDaemon := NewDaemon(senderStore, mainchain.NewAbstractCache(mc), transport, 20*time.Millisecond)
	receiverDaemon := NewDaemon(receiverStore, mainchain.NewAbstractCache(mc), transport, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go senderDaemon.Run(ctx)
	go receiverDaemon.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	tx := &ledger.Transaction{
		Number:     1,
		SenderID:   &sender.ID,
		ReceiverID: receiver.ID,
		Amount:     amount,
		Sources:    []ledger.SourceRef{mint.ID()},
	}
	tx.Signature = ledgercrypto.Sign(sender.PrivateKey, tx.CanonicalBytes())

	if err := senderDaemon.Send(ctx, tx, receiver.ID); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		balance, err := receiverStore.Balance(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if balance == amount {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("receiver's balance never reflected the sent transaction")
}

func registerDemoNode(t *testing.T, tr *tracker.Memory, registry *ledger.Registry) *ledger.Node {
	t.Helper()
	pub, priv, err := ledgercrypto.Generate()
	if err != nil {
		t.Fatal(err)
	}
	n, err := tr.RegisterNode(context.Background(), pub, "demo")
	if err != nil {
		t.Fatal(err)
	}
	n.PrivateKey = priv
	registry.Put(n)
	return n
}
