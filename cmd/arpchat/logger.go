package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// openLogger returns a logger writing to path at the given level.
// The terminal belongs to the chat, so logs never go to stdout or stderr.
// The returned closer releases the file.
func openLogger(path string, lvl zerolog.Level) (*zerolog.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	l := zerolog.New(zerolog.ConsoleWriter{
		Out:         f,
		NoColor:     true,
		FieldsOrder: []string{"session"},
		TimeFormat:  "15:04:05",
	}).With().
		Timestamp().
		Caller().
		Logger().Level(lvl)
	return &l, f, nil
}
