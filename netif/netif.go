// Package netif selects the link-layer interfaces arpchat can bind to.
//
// An interface is usable if it has a hardware address and at least one configured network-layer address;
// the latter is a heuristic for "up and actually attached to something".
package netif

import (
	"cmp"
	"errors"
	"fmt"
	"net"
	"slices"
)

var ErrNoInterfaces = errors.New("no usable network interfaces")

// ErrInvalidInterface returns an error to indicate that the named interface is absent or unusable.
func ErrInvalidInterface(name string) error {
	return fmt.Errorf("invalid interface %q", name)
}

// An Interface is a candidate for binding.
type Interface struct {
	Name         string
	HardwareAddr net.HardwareAddr
	Addrs        []string // configured network-layer addresses, CIDR notation
}

// Usable returns every usable interface on this host, most-addressed first.
func Usable() ([]Interface, error) {
	sys, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	candidates := make([]Interface, 0, len(sys))
	for _, ifc := range sys {
		addrs, err := ifc.Addrs()
		if err != nil { // interface vanished or is unreadable; not a candidate
			continue
		}
		c := Interface{Name: ifc.Name, HardwareAddr: ifc.HardwareAddr}
		for _, a := range addrs {
			c.Addrs = append(c.Addrs, a.String())
		}
		candidates = append(candidates, c)
	}
	return filterSorted(candidates), nil
}

// ByName returns the usable interface with the given name.
func ByName(name string) (Interface, error) {
	all, err := Usable()
	if err != nil {
		return Interface{}, err
	}
	for _, ifc := range all {
		if ifc.Name == name {
			return ifc, nil
		}
	}
	return Interface{}, ErrInvalidInterface(name)
}

// Default returns the preferred usable interface.
func Default() (Interface, error) {
	all, err := Usable()
	if err != nil {
		return Interface{}, err
	} else if len(all) == 0 {
		return Interface{}, ErrNoInterfaces
	}
	return all[0], nil
}

// filterSorted drops candidates without a hardware address or without addresses,
// then orders the remainder by descending address count.
// Ties keep their original order.
func filterSorted(in []Interface) []Interface {
	out := slices.DeleteFunc(slices.Clone(in), func(ifc Interface) bool {
		return len(ifc.HardwareAddr) == 0 || len(ifc.Addrs) == 0
	})
	slices.SortStableFunc(out, func(a, b Interface) int {
		return cmp.Compare(len(b.Addrs), len(a.Addrs))
	})
	return out
}
