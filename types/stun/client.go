package stun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/edup2p/rendezvous/types"
)

const maxResponseLen = 1024

// Discover sends one binding request from conn to server, and waits for the matching response,
// returning the address the server saw the request come from.
//
// Packets from other sources, or with another transaction ID, are skipped.
// Returns ErrNoResponse when nothing matching arrived before the timeout.
func Discover(ctx context.Context, conn types.UDPConn, server netip.AddrPort, timeout time.Duration) (netip.AddrPort, error) {
	server = types.NormaliseAddrPort(server)

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	txID := NewTxID()

	if _, err := conn.WriteToUDPAddrPort(Request(txID), server); err != nil {
		return netip.AddrPort{}, fmt.Errorf("could not send binding request to %s: %w", server, err)
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return netip.AddrPort{}, fmt.Errorf("could not set read deadline: %w", err)
	}
	defer func() {
		_ = conn.SetReadDeadline(time.Time{})
	}()

	var buf [maxResponseLen]byte

	for {
		if types.IsContextDone(ctx) {
			return netip.AddrPort{}, ctx.Err()
		}

		n, from, err := conn.ReadFromUDPAddrPort(buf[:])
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return netip.AddrPort{}, ErrNoResponse
			}
			return netip.AddrPort{}, err
		}

		if types.NormaliseAddrPort(from) != server || !Is(buf[:n]) {
			continue
		}

		tid, addr, err := ParseResponse(buf[:n])
		if err != nil {
			slog.Debug("dropping unparseable STUN response", "from", from, "err", err)
			continue
		}
		if tid != txID {
			slog.Log(ctx, types.LevelTrace, "dropping STUN response for other transaction", "from", from)
			continue
		}

		return types.NormaliseAddrPort(addr), nil
	}
}
