package main

// console.go implements the line-oriented terminal UI.

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rflandau/arpchat/config"
	"github.com/rflandau/arpchat/engine"
	"github.com/rflandau/arpchat/internal/queue"
	"github.com/rflandau/arpchat/ktp"
	"github.com/rflandau/arpchat/netif"
	"github.com/rflandau/arpchat/view"
	"github.com/rs/zerolog"
)

// refreshInterval is how often the console drains engine events.
const refreshInterval = 100 * time.Millisecond

const helpText = `commands:
  /name <username>     change your username
  /iface <name>        bind to an interface (retry after a failed bind)
  /ifaces              list usable interfaces
  /ethertype <value>   switch ether type (Experimental1, Experimental2, IPv4 or 0xNNNN)
  /offline             stop announcing your presence
  /online              resume announcing your presence
  /export [file]       write the chat history to a file
  /peers               list who is online
  /quit                leave
anything else is sent as a message`

var errQuit = errors.New("quit")

// console couples the terminal to the engine's queues.
type console struct {
	log    *zerolog.Logger
	out    io.Writer
	cmds   *queue.Queue[engine.Command]
	events *queue.Queue[engine.Event]
	model  *view.Model
	// persist is called whenever a preference worth remembering changes.
	persist func(func(*config.Config))
	// ifaces enumerates the interfaces offered by /ifaces.
	ifaces func() ([]netif.Interface, error)
}

// handleLine turns one line of user input into at most one engine command.
// Returns errQuit if the user asked to leave.
func (c *console) handleLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return c.cmds.Push(engine.SendMessage{Text: line})
	}

	verb, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch verb {
	case "quit", "q":
		return errQuit
	case "name":
		name := config.NormalizeUsername(arg)
		c.persist(func(cfg *config.Config) { cfg.Username = name })
		c.printf("> you are now known as %s\n", name)
		return c.cmds.Push(engine.UpdateUsername{Username: name})
	case "iface":
		if arg == "" {
			c.printf("! usage: /iface <name>\n")
			return nil
		}
		c.persist(func(cfg *config.Config) { cfg.InterfaceName = arg })
		c.printf("> binding to %s\n", arg)
		return c.cmds.Push(engine.SetInterface{Name: arg})
	case "ifaces":
		ifcs, err := c.ifaces()
		if err != nil {
			c.printf("! %v\n", err)
			return nil
		}
		if len(ifcs) == 0 {
			c.printf("! %v\n", netif.ErrNoInterfaces)
			return nil
		}
		for _, ifc := range ifcs {
			c.printf("%s\t%s\t%s\n", ifc.Name, ifc.HardwareAddr, strings.Join(ifc.Addrs, " "))
		}
	case "ethertype":
		et, err := ktp.ParseEtherType(arg)
		if err != nil {
			c.printf("! %v\n", err)
			return nil
		}
		c.persist(func(cfg *config.Config) { cfg.EtherType = &et })
		c.printf("> ether type is now %v\n", et)
		return c.cmds.Push(engine.SetEtherType{EtherType: et})
	case "offline":
		return c.cmds.Push(engine.PauseHeartbeat{Paused: true})
	case "online":
		return c.cmds.Push(engine.PauseHeartbeat{Paused: false})
	case "export":
		name := arg
		if name == "" {
			name = view.DefaultExportName(time.Now())
		}
		if err := c.export(name); err != nil {
			c.printf("! export failed: %v\n", err)
			return nil
		}
		c.printf("> chat exported to %s\n", name)
	case "peers":
		for _, p := range c.model.Peers() {
			mark := "*"
			if p.Inactive {
				mark = "-"
			}
			c.printf("%s %s (%v)\n", mark, p.Username, p.ID)
		}
	default:
		c.printf("%s\n", helpText)
	}
	return nil
}

// refresh drains every pending engine event into the model and prints the result.
func (c *console) refresh() {
	for _, ev := range c.events.Drain() {
		if _, ok := ev.(engine.AlertUser); ok {
			c.printf("\a")
		}
		for _, l := range c.model.Apply(ev) {
			c.printf("%s\n", l)
		}
		if ne, ok := ev.(engine.NetError); ok && (errors.Is(ne.Err, engine.ErrNotBound) || errors.Is(ne.Err, engine.ErrBindFailed)) {
			c.printf("> not connected: /iface <name> to try again (see /ifaces), or /quit\n")
		}
	}
}

func (c *console) export(name string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := c.model.Export(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *console) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(c.out, format, args...); err != nil {
		c.log.Warn().Err(err).Msg("failed to write to terminal")
	}
}

// run reads lines from in until the user quits, in closes, stop fires, or the engine exits.
// Events are drained every refreshInterval.
func (c *console) run(in io.Reader, stop <-chan os.Signal, engineDone <-chan struct{}) {
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	tick := time.NewTicker(refreshInterval)
	defer tick.Stop()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := c.handleLine(line); errors.Is(err, errQuit) {
				return
			} else if err != nil {
				c.printf("! %v\n", err)
			}
		case <-tick.C:
			c.refresh()
		case <-stop:
			return
		case <-engineDone:
			c.refresh()
			return
		}
	}
}
