package main

import (
	"fmt"
	"io"

	"github.com/bluetuith-org/adapterd/internal/serde"

	"github.com/fatih/color"
)

// printWarn prints a warning to the screen.
func printWarn(message string) {
	message = "[-] " + message

	color.New(color.FgYellow, color.Bold).Println(message)
}

// printError prints an error to the screen.
func printError(err error) {
	message := "[!] " + err.Error()

	color.New(color.FgRed, color.Bold).Println(message)
}

// printJSON prints v as a single line of JSON.
func printJSON(w io.Writer, v any) error {
	data, err := serde.MarshalJson(v)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}
