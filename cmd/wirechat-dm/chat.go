package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-dm/internal/conversation"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

const quitCommand = "/quit"

func newChatCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <user-id>",
		Short: "Open a conversation; type a line and press Enter to send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			s, err := c.signedIn(out)
			if err != nil {
				return err
			}
			me, _ := s.CurrentUser()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			contacts, err := s.Contacts(ctx)
			if err != nil {
				return err
			}
			peer, ok := findUser(contacts, args[0])
			if !ok {
				return fmt.Errorf("no user with id %q", args[0])
			}

			conv, err := s.OpenChat(ctx, peer)
			if err != nil {
				return err
			}
			defer conv.Close()

			_, _ = fmt.Fprintf(out, "Chatting with %s. Type %s to leave.\n", peer.DisplayName(), quitCommand)
			return runChat(ctx, conv, cmd.InOrStdin(), newTranscript(out, me, peer))
		},
	}
}

func findUser(users []schema.User, id string) (schema.User, bool) {
	for _, u := range users {
		if u.ID == id {
			return u, true
		}
	}
	return schema.User{}, false
}

// chatView is the part of a conversation the terminal loop drives.
type chatView interface {
	Updates() <-chan conversation.Update
	Send(body string)
}

// runChat renders updates and sends typed lines until ctx ends, input ends
// or the user quits.
func runChat(ctx context.Context, conv chatView, in io.Reader, tr *transcript) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-conv.Updates():
			if !ok {
				return nil
			}
			tr.render(u)
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == quitCommand {
				return nil
			}
			conv.Send(line)
		}
	}
}

// transcript prints a conversation to a terminal. The first population is
// printed whole; later updates print only records not shown yet, in view
// order.
type transcript struct {
	out     io.Writer
	names   map[string]string
	printed map[string]struct{}
}

func newTranscript(out io.Writer, me, peer schema.User) *transcript {
	return &transcript{
		out: out,
		names: map[string]string{
			me.ID:   "me",
			peer.ID: peer.Name,
		},
		printed: make(map[string]struct{}),
	}
}

func (t *transcript) render(u conversation.Update) {
	if u.Kind == conversation.UpdateReset {
		t.printed = make(map[string]struct{}, len(u.Messages))
	}
	for _, m := range u.Messages {
		key := messageKey(m)
		if _, seen := t.printed[key]; seen {
			continue
		}
		t.printed[key] = struct{}{}
		_, _ = fmt.Fprintf(t.out, "[%s] %s: %s\n", m.SentAt.Local().Format("2006-01-02 15:04"), t.name(m.SenderID), m.Body)
	}
}

func (t *transcript) name(id string) string {
	if n, ok := t.names[id]; ok && n != "" {
		return n
	}
	return id
}

func messageKey(m schema.Message) string {
	if m.ID != "" {
		return m.ID
	}
	return fmt.Sprintf("%s|%s|%d|%s", m.SenderID, m.ReceiverID, m.SentAt.UnixNano(), m.Body)
}
