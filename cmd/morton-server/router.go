package main

import (
	"io"
	"strings"
)

// CommandHandler is the signature for a command handler. Handlers write
// their response to the provided writer, typically a buffered writer
// wrapping the connection.
type CommandHandler func(w io.Writer, args []string)

// Router maps command names to handlers.
type Router struct {
	handlers map[string]CommandHandler
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]CommandHandler),
	}
}

// Handle registers a handler under a case-insensitive command name.
func (r *Router) Handle(name string, handler CommandHandler) {
	r.handlers[strings.ToUpper(name)] = handler
}

// Dispatch executes the handler for a parsed command. It returns true when
// the client asked to close the connection.
func (r *Router) Dispatch(app *application, w io.Writer, parts []string) (quit bool) {
	if len(parts) == 0 {
		return false
	}

	app.metrics.TotalCommands.Add(1)

	commandName := strings.ToUpper(parts[0])
	args := parts[1:]

	if commandName == "QUIT" {
		_ = app.writeSimpleStringResponse(w, "OK")
		return true
	}

	handler, found := r.handlers[commandName]
	if !found {
		app.unknownCommandResponse(w, commandName)
		return false
	}

	handler(w, args)
	return false
}

// commands wires up the command table.
func (app *application) commands() *Router {
	r := NewRouter()

	r.Handle("PING", app.handlePing)
	r.Handle("STATS", app.handleStats)

	r.Handle("MF.CREATE", app.handleMFCreate)
	r.Handle("MF.INSERT", app.handleMFInsert)
	r.Handle("MF.EXISTS", app.handleMFExists)
	r.Handle("MF.DEL", app.handleMFDel)
	r.Handle("MF.RESIZE", app.handleMFResize)
	r.Handle("MF.INFO", app.handleMFInfo)
	r.Handle("MF.DROP", app.handleMFDrop)

	return r
}
