//go:build !unix

package main

import (
	"errors"

	"github.com/edup2p/rendezvous/toversok"
)

func race(*toversok.Service, *toversok.Service, int, bool) error {
	return errors.New("race is only supported on unix")
}
