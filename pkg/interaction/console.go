package interaction

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"assistant/pkg/logx"
)

// ConsoleChannel is the fallback dialogue channel: prompts go to stdout and
// replies are read line-by-line from stdin.
type ConsoleChannel struct {
	out    io.Writer
	in     *bufio.Reader
	logger *logx.Logger
	lines  chan string
}

// NewConsoleChannel creates a console channel over the process's stdio. A
// reader goroutine is started once; lines typed outside any reply window
// are drained and ignored.
func NewConsoleChannel() *ConsoleChannel {
	c := &ConsoleChannel{
		out:    os.Stdout,
		in:     bufio.NewReader(os.Stdin),
		logger: logx.NewLogger("console"),
		lines:  make(chan string),
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		c.logger.Warn("Stdin is not a terminal; console replies may not work")
	}
	go c.readLoop()
	return c
}

func (c *ConsoleChannel) readLoop() {
	for {
		line, err := c.in.ReadString('\n')
		if err != nil {
			close(c.lines)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		select {
		case c.lines <- line:
		default:
			// Nobody is waiting for a reply; drop the line.
		}
	}
}

// Deliver implements Channel by printing the prompt.
func (c *ConsoleChannel) Deliver(ctx context.Context, prompt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.out, "\n=== ASSISTANT ===\n%s\n> ", prompt)
	return err
}

// AwaitReply implements Channel by waiting for the next typed line.
func (c *ConsoleChannel) AwaitReply(ctx context.Context, deadline time.Time) (string, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", context.DeadlineExceeded
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}
