package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"github.com/edup2p/rendezvous/toversok"
	"github.com/edup2p/rendezvous/types"
	"github.com/edup2p/rendezvous/types/contact"
	"github.com/edup2p/rendezvous/types/key"
)

var (
	programLevel = new(slog.LevelVar) // Info by default

	privKey *key.NodePrivate

	svc *toversok.Service

	// remote is an in-process second peer, only used by the race command.
	remote *toversok.Service

	nextToken uint32
)

func main() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: programLevel, AddSource: true})
	slog.SetDefault(slog.New(h))
	programLevel.Set(slog.LevelDebug)

	shell := ishell.New()

	shell.SetHomeHistoryPath(".rdvsh_history")

	shell.Println("Rendezvous Interactive Shell")

	shell.AddCmd(&ishell.Cmd{
		Name: "trace",
		Help: "set log level to trace",
		Func: func(c *ishell.Context) {
			programLevel.Set(types.LevelTrace)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "debug",
		Help: "set log level to debug",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelDebug)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "set log level to info",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelInfo)
		},
	})

	shell.AddCmd(keyCmd())
	shell.AddCmd(svcCmd())
	shell.AddCmd(contactCmd())
	shell.AddCmd(raceCmd())

	shell.AddCmd(&ishell.Cmd{
		Name: "peers",
		Help: "list peers with an active connection",
		Func: func(c *ishell.Context) {
			if !requireService(c) {
				return
			}

			for _, p := range svc.Peers() {
				c.Println(p.Marshal())
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "send a message to a peer: <pubkey> <text...>",
		Func: func(c *ishell.Context) {
			if !requireService(c) {
				return
			}

			if len(c.Args) < 2 {
				c.Err(errors.New("expected a peer key and a message"))
				return
			}

			peer, err := key.UnmarshalPublic(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}

			if err := svc.Send(*peer, []byte(strings.Join(c.Args[1:], " "))); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "disconnect",
		Help: "close the connection to a peer: <pubkey>",
		Func: func(c *ishell.Context) {
			if !requireService(c) {
				return
			}

			if len(c.Args) != 1 {
				c.Err(errors.New("expected a peer key"))
				return
			}

			peer, err := key.UnmarshalPublic(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}

			if err := svc.Disconnect(*peer); err != nil {
				c.Err(err)
			}
		},
	})

	shell.Run()

	stopAll()
}

func requireService(c *ishell.Context) bool {
	if svc == nil {
		c.Err(errors.New("service not started"))
		return false
	}
	return true
}

func stopAll() {
	keepPrepared(nil)

	if remote != nil {
		if err := remote.Close(); err != nil {
			slog.Warn("closing remote service", "err", err)
		}
		remote = nil
	}
	if svc != nil {
		if err := svc.Close(); err != nil {
			slog.Warn("closing service", "err", err)
		}
		svc = nil
	}
}

// Key commands
func keyCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "key",
		Help: "private key setting, generating, and reading",
		Func: func(c *ishell.Context) {
			if privKey == nil {
				c.Println("key: nil")
			} else {
				c.Println("key:", privKey.Marshal())
			}
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "gen",
		Help: "generate a new key",
		Func: func(c *ishell.Context) {
			k := key.NewNode()
			privKey = &k

			c.Println("key generated:", privKey.Marshal())
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "set",
		Help: "set a key",
		Func: func(c *ishell.Context) {
			var line string
			if len(c.Args) == 0 {
				c.Println("enter the key, with 'privkey:' prefix")
				line = c.ReadLine()
			} else {
				line = c.Args[0]
			}

			p, err := key.UnmarshalPrivate(line)
			if err != nil {
				c.Err(err)
				return
			}
			privKey = p
		},
	})

	c.AddCmd(&ishell.Cmd{Name: "pub", Help: "show the pubkey", Func: func(c *ishell.Context) {
		if privKey != nil {
			c.Println("pub:", privKey.Public().Marshal())
		} else {
			c.Err(errors.New("private key not set"))
		}
	}})

	return c
}

// Service commands
func svcCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "svc",
		Help: "rendezvous service lifecycle",
		Func: func(c *ishell.Context) {
			if svc == nil {
				c.Println("service: stopped")
				return
			}
			c.Println("service:", svc.PublicKey().Marshal())
			c.Println("dropped events:", svc.Events().Dropped())
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "start",
		Help: "start the service: [-reactors n] [-bind addr:port] [-stun addr:port,...] [-static tcp://addr:port,...] [-drop]",
		Func: func(c *ishell.Context) {
			if svc != nil {
				c.Err(errors.New("service already started"))
				return
			}
			if privKey == nil {
				c.Err(errors.New("private key not set"))
				return
			}

			opts, err := parseStartFlags(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			opts.Ctx = context.Background()
			opts.PrivKey = *privKey

			s, err := toversok.NewService(opts)
			if err != nil {
				c.Err(err)
				return
			}
			svc = s

			go printEvents("local", svc, localColor)

			c.Println("started as", svc.PublicKey().Marshal())
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop the service",
		Func: func(c *ishell.Context) {
			if !requireService(c) {
				return
			}
			stopAll()
			c.Println("stopped")
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "endpoints",
		Help: "replace our external endpoints: <tcp://addr:port|udp://addr:port...>",
		Func: func(c *ishell.Context) {
			if !requireService(c) {
				return
			}

			eps, err := parseEndpoints(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			svc.SetExternalEndpoints(eps)
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "bootstrapped",
		Help: "report that bootstrapping has finished",
		Func: func(c *ishell.Context) {
			if !requireService(c) {
				return
			}
			svc.FinishBootstrap()
		},
	})

	return c
}

func parseStartFlags(args []string) (toversok.ServiceOptions, error) {
	var opts toversok.ServiceOptions

	fs := flag.NewFlagSet("start", flag.ContinueOnError)

	reactors := fs.Int("reactors", toversok.DefaultReactors, "amount of event loops")
	bind := fs.String("bind", "", "UDP bind address for contact info sockets")
	stunServers := fs.String("stun", "", "STUN servers (comma-separated addr:port)")
	static := fs.String("static", "", "static endpoints (comma-separated proto://addr:port)")
	drop := fs.Bool("drop", false, "drop the oldest event instead of blocking when the event channel is full")

	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("could not parse flags: %w", err)
	}

	opts.Reactors = *reactors

	if *bind != "" {
		ap, err := netip.ParseAddrPort(*bind)
		if err != nil {
			return opts, err
		}
		opts.UDPBind = ap
	}

	for _, s := range splitList(*stunServers) {
		ap, err := netip.ParseAddrPort(s)
		if err != nil {
			return opts, err
		}
		opts.StunServers = append(opts.StunServers, ap)
	}

	eps, err := parseEndpoints(splitList(*static))
	if err != nil {
		return opts, err
	}
	opts.StaticEndpoints = eps

	if *drop {
		opts.Overflow = toversok.OverflowDropOldest
	}

	return opts, nil
}

func parseEndpoints(ss []string) ([]contact.Endpoint, error) {
	var eps []contact.Endpoint
	for _, s := range ss {
		ep, err := contact.ParseEndpoint(s)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// Contact info commands
func contactCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "contact",
		Help: "contact info preparation and decoding",
	}

	c.AddCmd(&ishell.Cmd{
		Name: "prepare",
		Help: "prepare our contact info: [token]",
		Func: func(c *ishell.Context) {
			if !requireService(c) {
				return
			}

			nextToken++
			token := nextToken

			if len(c.Args) > 0 {
				t, err := strconv.ParseUint(c.Args[0], 10, 32)
				if err != nil {
					c.Err(err)
					return
				}
				token = uint32(t)
			}

			svc.PrepareContactInfo(token)

			c.Println("preparing contact info with token", token)
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "decode",
		Help: "decode a contact info blob: <blob>",
		Func: func(c *ishell.Context) {
			var line string
			if len(c.Args) == 0 {
				c.Println("enter the contact info blob")
				line = c.ReadLine()
			} else {
				line = c.Args[0]
			}

			info, err := contact.DecodeTheirInfo(strings.TrimSpace(line))
			if err != nil {
				c.Err(err)
				return
			}

			c.Println(info.String())
		},
	})

	return c
}

// Race commands
func raceCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name: "race",
		Help: "race n in-process connections against a second local peer: [n] [-bootstrap]",
		Func: func(c *ishell.Context) {
			if !requireService(c) {
				return
			}

			fs := flag.NewFlagSet("race", flag.ContinueOnError)
			bootstrap := fs.Bool("bootstrap", false, "hand off as bootstrap connections")
			if err := fs.Parse(c.Args); err != nil {
				c.Err(fmt.Errorf("could not parse flags: %w", err))
				return
			}

			n := 4
			if fs.NArg() > 0 {
				i, err := strconv.Atoi(fs.Arg(0))
				if err != nil {
					c.Err(err)
					return
				}
				n = i
			}

			if remote == nil {
				r, err := toversok.NewService(toversok.ServiceOptions{
					Ctx:     context.Background(),
					PrivKey: key.NewNode(),
				})
				if err != nil {
					c.Err(err)
					return
				}
				remote = r

				go printEvents("remote", remote, remoteColor)

				c.Println("remote peer:", remote.PublicKey().Marshal())
			}

			if err := race(svc, remote, n, *bootstrap); err != nil {
				c.Err(err)
			}
		},
	}
}
