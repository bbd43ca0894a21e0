package main

import (
	"sync"

	"github.com/edup2p/rendezvous/toversok"
	"github.com/edup2p/rendezvous/types/contact"
	"github.com/fatih/color"
)

var (
	localColor  = color.New(color.FgCyan).PrintfFunc()
	remoteColor = color.New(color.FgMagenta).PrintfFunc()
	errColor    = color.New(color.FgRed, color.Bold).PrintfFunc()
)

var (
	preparedMu sync.Mutex
	// prepared holds the socket of the last prepared contact info open, until it is replaced or the shell exits.
	prepared *contact.OurContactInfo
)

func keepPrepared(our *contact.OurContactInfo) {
	preparedMu.Lock()
	defer preparedMu.Unlock()

	if prepared != nil {
		_ = prepared.Close()
	}
	prepared = our
}

// printEvents prints everything s reports, until its event channel is closed.
func printEvents(name string, s *toversok.Service, p func(format string, a ...interface{})) {
	for ev := range s.Events().C() {
		switch e := ev.(type) {
		case toversok.NewMessage:
			p("[%s] message from %s: %q\n", name, e.Peer.Debug(), e.Payload)
		case toversok.NewBootstrapConnection:
			p("[%s] bootstrap connection to %s\n", name, e.TheirPubKey.Debug())
		case toversok.NewConnection:
			if e.Err != nil {
				errColor("[%s] connection to %s failed: %s\n", name, e.TheirPubKey.Debug(), e.Err)
			} else {
				p("[%s] connection to %s\n", name, e.TheirPubKey.Debug())
			}
		case toversok.LostConnection:
			errColor("[%s] lost connection to %s\n", name, e.Peer.Debug())
		case toversok.BootstrapFinished:
			p("[%s] bootstrap finished\n", name)
		case toversok.ExternalEndpoints:
			p("[%s] external endpoints: %v\n", name, e.Endpoints)
		case toversok.ContactInfoPrepared:
			printContactInfo(name, e.Result, p)
		default:
			p("[%s] %s\n", name, ev.EventName())
		}
	}
}

func printContactInfo(name string, res contact.ContactInfoResult, p func(format string, a ...interface{})) {
	if res.Err != nil {
		errColor("[%s] contact info %d failed: %s\n", name, res.ResultToken, res.Err)
		return
	}

	keepPrepared(res.Result)

	their := res.Result.MakeTheirInfo()

	blob, err := contact.EncodeTheirInfo(their)
	if err != nil {
		errColor("[%s] contact info %d could not be encoded: %s\n", name, res.ResultToken, err)
		return
	}

	p("[%s] contact info %d: %s\n%s\n", name, res.ResultToken, their, blob)
}
