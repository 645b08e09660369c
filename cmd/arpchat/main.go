/*
arpchat is a serverless chat for a single broadcast domain.
Messages travel inside Ethernet frames disguised as ARP requests, so no IP configuration is needed.

Capturing and injecting frames usually requires root (or CAP_NET_RAW).
Send a SIGINT or type /quit to leave.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/rflandau/arpchat/api"
	"github.com/rflandau/arpchat/config"
	"github.com/rflandau/arpchat/engine"
	"github.com/rflandau/arpchat/internal/queue"
	"github.com/rflandau/arpchat/ktp"
	"github.com/rflandau/arpchat/netif"
	"github.com/rflandau/arpchat/view"
)

func main() {
	var (
		cfgPath   = flag.String("config", config.DefaultPath(), "path to the config file")
		ifaceName = flag.String("iface", "", "interface to bind (default: stored preference, then the most-addressed usable interface)")
		username  = flag.String("username", "", "username (default: stored preference, then the host name)")
		etherType = flag.String("ethertype", "", "ether type: Experimental1, Experimental2, IPv4 or 0xNNNN")
		apiAddr   = flag.String("api", "", "also serve the local HTTP API on this address (e.g. 127.0.0.1:8080)")
		list      = flag.Bool("list", false, "list usable interfaces and exit")
	)
	flag.Parse()

	if err := run(*cfgPath, *ifaceName, *username, *etherType, *apiAddr, *list); err != nil {
		fmt.Fprintf(os.Stderr, "arpchat: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, ifaceName, username, etherType, apiAddr string, list bool) error {
	if list {
		ifcs, err := netif.Usable()
		if err != nil {
			return err
		}
		for _, ifc := range ifcs {
			fmt.Printf("%s\t%s\t%v\n", ifc.Name, ifc.HardwareAddr, ifc.Addrs)
		}
		return nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log, logFile, err := openLogger(cfg.LogFileOrDefault(), cfg.Level())
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	// flags override stored preferences, and become the stored preferences
	if etherType != "" {
		et, err := ktp.ParseEtherType(etherType)
		if err != nil {
			return err
		}
		cfg.EtherType = &et
	}
	if username != "" {
		cfg.Username = username
	}
	if ifaceName == "" {
		ifaceName = cfg.InterfaceName
	}
	if ifaceName == "" {
		ifc, err := netif.Default()
		if err != nil {
			return err
		}
		ifaceName = ifc.Name
	}
	cfg.InterfaceName = ifaceName
	name := cfg.ResolvedUsername()

	save := func() {
		if err := cfg.Save(cfgPath); err != nil {
			log.Warn().Err(err).Str("path", cfgPath).Msg("failed to save config")
		}
	}
	persist := func(mutate func(*config.Config)) {
		mutate(&cfg)
		save()
	}
	save()

	cmds, events := queue.New[engine.Command](), queue.New[engine.Event]()
	eng := engine.New(cmds, events,
		engine.WithLogger(log),
		engine.WithEtherType(cfg.EtherTypeOrDefault()),
		engine.WithUsername(name))

	var runErr error
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		runErr = eng.Run()
	}()
	cmds.Push(engine.SetInterface{Name: ifaceName})
	cmds.Push(engine.UpdateUsername{Username: name})

	model := view.New(nil)
	if apiAddr != "" {
		srv := api.New(model, cmds, api.WithLogger(log))
		if err := srv.Start(apiAddr); err != nil {
			return fmt.Errorf("start api: %w", err)
		}
		defer srv.Stop()
	}

	fmt.Printf("arpchat on %s as %s (ether type %v). Type /help for commands.\n", ifaceName, name, cfg.EtherTypeOrDefault())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	c := &console{log: log, out: os.Stdout, cmds: cmds, events: events, model: model, persist: persist, ifaces: netif.Usable}
	c.run(os.Stdin, sig, engineDone)

	// shutdown handshake: one Terminate, then join
	cmds.Push(engine.Terminate{})
	<-engineDone
	c.refresh()
	cmds.Close()
	return runErr
}
