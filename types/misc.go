package types

// Contains miscellaneous functions and types

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"

	"golang.org/x/exp/maps"
)

// Incomparable is a zero-width incomparable type. If added as the
// first field in a struct, it marks that struct as not comparable
// (can't do == or be a map key) and usually doesn't add any width to
// the struct (unless the struct has only small fields).
//
// (Taken from the tailscale types library)
type Incomparable [0]func()

// SetSubtraction returns the elements in `a` that aren't in `b`.
//
// in set notation: a - b
func SetSubtraction[T comparable](a, b []T) []T {
	set := make(map[T]interface{})

	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, x := range b {
		delete(set, x)
	}

	return maps.Keys(set)
}

// SameSet reports whether a and b contain the same elements, ignoring order and duplicates.
func SameSet[T comparable](a, b []T) bool {
	return len(SetSubtraction(a, b)) == 0 && len(SetSubtraction(b, a)) == 0
}

// Dedup returns s with later duplicates removed, keeping the order of first appearance.
func Dedup[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	out := make([]T, 0, len(s))

	for _, x := range s {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}

	return out
}

// IsContextDone does a quick check on a context to see if its dead.
func IsContextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

const LevelTrace slog.Level = -8

func NormaliseAddrPort(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(NormaliseAddr(ap.Addr()), ap.Port())
}

func NormaliseAddr(addr netip.Addr) netip.Addr {
	if addr.Is4In6() {
		addr = netip.AddrFrom4(addr.As4())
	}

	return addr
}

func PrettyAddrPortSlice(s []netip.AddrPort) string {
	return "[" + strings.Join(Map(s, netip.AddrPort.String), ", ") + "]"
}

// Map is a generic slice mapping function taken from https://stackoverflow.com/a/71624929/8700553,
// since golang loves to not give its developers any usable tools.
func Map[T, U any](ts []T, f func(T) U) []U {
	us := make([]U, len(ts))
	for i := range ts {
		us[i] = f(ts[i])
	}
	return us
}
