//go:build mage

// Tools for building and testing arpchat.
package main

import (
	"errors"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Checks that libpcap headers are likely present; the capture link links against them.
func Pcap() error {
	if _, err := exec.LookPath("pkg-config"); err != nil {
		return errors.Join(errors.New("pkg-config not available in $PATH"), err)
	}
	if err := sh.Run("pkg-config", "--exists", "libpcap"); err != nil {
		return errors.Join(errors.New("libpcap development files not found (try libpcap-dev)"), err)
	}
	return nil
}

// Builds the arpchat binary into ./bin.
func Build() error {
	mg.Deps(Pcap)
	return sh.RunV("go", "build", "-o", "bin/arpchat", "./cmd/arpchat")
}

// Grants the built binary raw socket capabilities so it can run without root.
func Setcap() error {
	mg.Deps(Build)
	return sh.RunV("sudo", "setcap", "cap_net_raw,cap_net_admin=eip", "bin/arpchat")
}

// Runs all tests.
// Tests are run with -race.
func Test() error {
	_, err := sh.Exec(nil, os.Stdout, os.Stderr, "go", "test", "./...", "-race", "-count=1")
	return err
}
