// Command ledgerkey generates an Ed25519 keypair for a ledger node and
// prints its public key and its 64-byte private key. The private key's
// first 32 bytes are the seed, so the same identity can be recreated
// later with -seed.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"

	"github.com/scaleledger/scaleledger/ledgercrypto"
)

func main() {
	seedHex := flag.String("seed", "", "hex-encoded 32-byte seed; random if empty")
	flag.Parse()

	var (
		pub  ledgercrypto.PublicKey
		priv ledgercrypto.PrivateKey
		err  error
	)
	if *seedHex == "" {
		pub, priv, err = ledgercrypto.Generate()
	} else {
		seed, decErr := hex.DecodeString(*seedHex)
		if decErr != nil {
			log.Fatalf("decoding seed: %v", decErr)
		}
		pub, priv, err = ledgercrypto.FromSeed(seed)
	}
	if err != nil {
		log.Fatalf("generating keypair: %v", err)
	}

	fmt.Printf("public:  %x\n", pub)
	fmt.Printf("private: %x\n", priv)
}
