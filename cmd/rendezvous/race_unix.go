//go:build unix

package main

import (
	"fmt"

	"github.com/edup2p/rendezvous/toversok"
	"github.com/edup2p/rendezvous/toversok/actors"
	"github.com/edup2p/rendezvous/types/key"
	"golang.org/x/sys/unix"
)

// race hands off n connected socket pairs to both services at once, leaving it to them to settle on one.
func race(a, b *toversok.Service, n int, bootstrap bool) error {
	handOff := func(s *toversok.Service) func(actors.RawConn, key.NodePublic) error {
		if bootstrap {
			return s.HandOffBootstrap
		}
		return s.HandOffRendezvous
	}

	for i := 0; i < n; i++ {
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			return fmt.Errorf("could not create socket pair: %w", err)
		}

		ra, err := actors.NewFdConn(fds[0])
		if err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return err
		}
		rb, err := actors.NewFdConn(fds[1])
		if err != nil {
			ra.Close()
			unix.Close(fds[1])
			return err
		}

		// handing off closes the conn on failure
		if err := handOff(a)(ra, b.PublicKey()); err != nil {
			rb.Close()
			return err
		}
		if err := handOff(b)(rb, a.PublicKey()); err != nil {
			return err
		}
	}

	return nil
}
