package helpers

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/stephnangue/sessionpipe/api"
)

// TerminalNotifier prints notifications to a terminal.
type TerminalNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	return &TerminalNotifier{out: out}
}

func (n *TerminalNotifier) Notify(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "Error: %s\n", message)
}

// TerminalNavigator tracks which surface the CLI is on. Commands that run
// the sign-in flow move it to the sign-in path first.
type TerminalNavigator struct {
	mu   sync.Mutex
	out  io.Writer
	path string
}

func NewTerminalNavigator(out io.Writer, path string) *TerminalNavigator {
	return &TerminalNavigator{out: out, path: path}
}

func (n *TerminalNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// Enter moves to path without any output.
func (n *TerminalNavigator) Enter(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
}

func (n *TerminalNavigator) Navigate(path string, _ api.NavigateOptions) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	fmt.Fprintln(n.out, `Run "sessionpipe login" to start a new session.`)
}

var (
	_ api.Notifier  = (*TerminalNotifier)(nil)
	_ api.Navigator = (*TerminalNavigator)(nil)
)
