package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/fractalmind-ai/translatebot/pkg/protocol"
)

type watchOptions struct {
	url     string
	session string
	count   int
}

func newWatchCmd() *cobra.Command {
	opts := watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print translation and share events from a running bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "ws://127.0.0.1:18789/ws", "websocket gateway URL")
	cmd.Flags().StringVar(&opts.session, "session", "", "session id; reconnecting with the same id replaces the old connection")
	cmd.Flags().IntVar(&opts.count, "count", 0, "exit after this many events (0 runs until interrupted)")
	return cmd
}

func runWatch(ctx context.Context, out io.Writer, opts watchOptions) error {
	target := opts.url
	if opts.session != "" {
		target += "?session=" + url.QueryEscape(opts.session)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, target, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	req := protocol.Message{Kind: protocol.MessageKindEvent, Action: protocol.ActionSubscribe}
	if err := conn.WriteJSON(&req); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	seen := 0
	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		if msg.Error != "" {
			return errors.New(msg.Error)
		}
		// The subscribe acknowledgement is not an event.
		if msg.Action == protocol.ActionSubscribe {
			continue
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		fmt.Fprintln(out, string(payload))
		seen++
		if opts.count > 0 && seen >= opts.count {
			return nil
		}
	}
}
