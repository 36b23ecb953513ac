package server

import (
	"fmt"

	"github.com/fatih/color"
)

var methodColors = map[string]*color.Color{
	"GET":    color.New(color.FgGreen),
	"POST":   color.New(color.FgBlue),
	"PUT":    color.New(color.FgCyan),
	"DELETE": color.New(color.FgYellow),
	"PATCH":  color.New(color.FgMagenta),
}

var (
	grey = color.New(color.FgHiBlack)
	red  = color.New(color.FgRed)
)

// colorMethod pads and colours an HTTP method for terminal output.
func colorMethod(method string) string {
	padded := fmt.Sprintf(" %-7s", method)
	if c, ok := methodColors[method]; ok {
		return c.Sprint(padded)
	}
	return grey.Sprint(padded)
}

// colorStatus colours a response status: red for server errors, yellow for client errors.
func colorStatus(status int) string {
	switch {
	case status >= 500:
		return red.Sprint(status)
	case status >= 400:
		return methodColors["DELETE"].Sprint(status)
	default:
		return methodColors["GET"].Sprint(status)
	}
}
