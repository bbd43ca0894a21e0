package stun

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/edup2p/rendezvous/types"
)

// Server answers binding requests sent by this software, used for tests and the stun_client tool.
type Server struct {
	ctx  context.Context // ctx signals service shutdown
	bind *net.UDPConn    // bind is the UDP listener
}

func NewServer(ctx context.Context) *Server {
	return &Server{ctx: ctx}
}

func (s *Server) Listen(addrPort netip.AddrPort) error {
	var err error
	s.bind, err = net.ListenUDP("udp", net.UDPAddrFromAddrPort(addrPort))
	if err != nil {
		return err
	}
	slog.Info("STUN server listening", "addr", s.LocalAddr())

	// close the listener on shutdown in order to break out of the read loop
	context.AfterFunc(s.ctx, func() {
		if err := s.bind.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("failed to close bind", "err", err)
		}
	})
	return nil
}

// LocalAddr returns the local address of the STUN server. It must not be called before Listen.
func (s *Server) LocalAddr() netip.AddrPort {
	return types.NormaliseAddrPort(s.bind.LocalAddr().(*net.UDPAddr).AddrPort())
}

func (s *Server) Serve() error {
	var buf [64 << 10]byte

	for {
		n, ap, err := s.bind.ReadFromUDPAddrPort(buf[:])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("STUN read failed", "err", err)
			time.Sleep(time.Second)
			continue
		}

		pkt := buf[:n]
		if !Is(pkt) {
			continue
		}

		txid, err := ParseBindingRequest(pkt)
		if err != nil {
			slog.Debug("ParseBindingRequest failed", "err", err)
			continue
		}

		res := Response(txid, types.NormaliseAddrPort(ap))

		if _, err = s.bind.WriteToUDPAddrPort(res, ap); err != nil {
			slog.Info("writing back STUN response failed", "err", err)
		}
	}
}

// ListenAndServe starts the STUN server on listenAddr.
func (s *Server) ListenAndServe(listenAddr netip.AddrPort) error {
	if err := s.Listen(listenAddr); err != nil {
		return err
	}
	return s.Serve()
}
