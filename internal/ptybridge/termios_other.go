//go:build !linux

package ptybridge

import (
	"os"

	"golang.org/x/term"
)

func makeRaw(tty *os.File) error {
	_, err := term.MakeRaw(int(tty.Fd()))
	return err
}
