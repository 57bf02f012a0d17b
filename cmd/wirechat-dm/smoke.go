package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-dm/internal/conversation"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/remote"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

func newSmokeCmd(c *cli) *cobra.Command {
	var (
		text    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Register two throwaway users and check a message round trip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runSmoke(ctx, c.client, text, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&text, "text", "hello from smoke test", "message text to send")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "total timeout for the run")
	return cmd
}

func runSmoke(ctx context.Context, newClient func() (*remote.Client, error), text string, out io.Writer) error {
	run := uuid.NewString()[:8]

	alice, aliceUser, err := smokeUser(ctx, newClient, "smoke-a-"+run)
	if err != nil {
		return err
	}
	bob, bobUser, err := smokeUser(ctx, newClient, "smoke-b-"+run)
	if err != nil {
		return err
	}

	aliceConv, err := conversation.Open(ctx, alice, aliceUser.ID, bobUser.ID)
	if err != nil {
		return fmt.Errorf("open sender view: %w", err)
	}
	defer aliceConv.Close()
	bobConv, err := conversation.Open(ctx, bob, bobUser.ID, aliceUser.ID)
	if err != nil {
		return fmt.Errorf("open receiver view: %w", err)
	}
	defer bobConv.Close()

	start := time.Now()
	aliceConv.Send(text)

	g, gctx := errgroup.WithContext(ctx)
	for _, conv := range []*conversation.Conversation{aliceConv, bobConv} {
		g.Go(func() error {
			return awaitMessage(gctx, conv, aliceUser.ID, text)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "round trip ok in %s\n", time.Since(start).Round(time.Millisecond))
	return err
}

func smokeUser(ctx context.Context, newClient func() (*remote.Client, error), name string) (*remote.Client, schema.User, error) {
	client, err := newClient()
	if err != nil {
		return nil, schema.User{}, err
	}
	resp, err := client.Register(ctx, proto.RegisterRequest{
		Name:            name,
		LastName:        "Smoke",
		Email:           name + "@smoke.test",
		Password:        "smoke-password",
		ConfirmPassword: "smoke-password",
		Image:           base64.StdEncoding.EncodeToString([]byte(name)),
	})
	if err != nil {
		return nil, schema.User{}, fmt.Errorf("register %s: %w", name, err)
	}
	return client, resp.User, nil
}

func awaitMessage(ctx context.Context, conv *conversation.Conversation, senderID, body string) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for message in %s view: %w", conv.Local(), ctx.Err())
		case u, ok := <-conv.Updates():
			if !ok {
				return errors.New("conversation closed before the message arrived")
			}
			for _, m := range u.Messages {
				if m.SenderID == senderID && m.Body == body {
					return nil
				}
			}
		}
	}
}
