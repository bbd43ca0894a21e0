package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/netip"
	"time"

	"github.com/edup2p/rendezvous/types"
	"github.com/edup2p/rendezvous/types/stun"
)

func main() {
	log.SetFlags(0)

	timeout := flag.Duration("timeout", 3*time.Second, "how long to wait for a response")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: stun_client [-timeout 3s] <address[:port]>")
	}

	server, err := parseServer(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	c, err := net.ListenUDP("udp", nil)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	mapped, err := stun.Discover(context.Background(), c, server, *timeout)
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("local   : %v", c.LocalAddr())
	log.Printf("server  : %v", server)
	log.Printf("stun    : %v", mapped)
}

func parseServer(s string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return types.NormaliseAddrPort(ap), nil
	}

	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.AddrPort{}, err
	}

	return netip.AddrPortFrom(types.NormaliseAddr(a), stun.DefaultPort), nil
}
