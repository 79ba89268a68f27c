package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"expensechat/internal/brain"
)

// ChatOptions configures the REPL.
type ChatOptions struct {
	OwnerID   string // ledger owner; empty chats unauthenticated
	ChannelID string // conversation key; defaults to "cli:<owner>"
}

const (
	replPrompt = "> "
	cmdExit    = "/exit"
	cmdQuit    = "/quit"
	cmdReset   = "/reset"
)

// RunChat reads one message per line from in and prints the assistant's
// replies to out until EOF, /exit or ctx is canceled. /reset clears the
// conversation.
func RunChat(ctx context.Context, r ChatRouter, opts ChatOptions, in io.Reader, out io.Writer) error {
	channel := opts.ChannelID
	if channel == "" {
		channel = "cli:" + opts.OwnerID
	}

	fmt.Fprintln(out, brain.Greeting)
	if opts.OwnerID == "" {
		fmt.Fprintln(out, "(no --owner given: the ledger is unavailable)")
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, replPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case cmdExit, cmdQuit:
			return nil
		case cmdReset:
			r.Forget(channel)
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		reply, err := r.Route(ctx, channel, opts.OwnerID, line)
		text := ""
		if reply != nil {
			text = reply.Reply
		}
		if err != nil && text == "" {
			text = brain.Guidance(err)
		}
		fmt.Fprintln(out, text)
		if reply != nil {
			for _, res := range reply.ToolResults {
				fmt.Fprintf(out, "  [%s]\n", res.Name)
			}
		}
	}
}
