// Command tropic-model runs a software chip behind a TCP listener,
// speaking the same bridge protocol as the devkit adapters. Point the
// tropic CLI (or any Device with a TCP port) at it:
//
//	tropic-model -listen localhost:28992 -pairing-pub <hex> &
//	tropic --tcp localhost:28992 info
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/pion/logging"

	"github.com/avp-protocol/avp-tropic/pkg/chipmodel"
)

func main() {
	listenAddr := flag.String("listen", "localhost:28992", "listen address")
	pairingPub := flag.String("pairing-pub", "", "hex-encoded host pairing public key for slot 0")
	maintenance := flag.Bool("maintenance", false, "start in maintenance mode")
	verbose := flag.Bool("verbose", false, "trace-level model logging")
	flag.Parse()

	factory := logging.NewDefaultLoggerFactory()
	if *verbose {
		factory.DefaultLogLevel = logging.LogLevelTrace
	}

	model, err := chipmodel.New(chipmodel.Config{
		StartInMaintenance: *maintenance,
		LoggerFactory:      factory,
	})
	if err != nil {
		log.Fatal(err)
	}

	if *pairingPub != "" {
		raw, err := hex.DecodeString(*pairingPub)
		if err != nil || len(raw) != 32 {
			log.Fatal("-pairing-pub must be 32 hex-encoded bytes")
		}
		var pub [32]byte
		copy(pub[:], raw)
		model.SetPairingKey(0, pub)
	}

	listener, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Fprintf(os.Stderr, "chip model listening on %s\n", listener.Addr())

	// One chip, one host: serve one connection at a time.
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Fatal(err)
		}
		if err := model.Serve(conn); err != nil {
			log.Printf("connection ended: %v", err)
		}
		_ = conn.Close()
		if err := model.Reset(); err != nil {
			log.Fatal(err)
		}
	}
}
