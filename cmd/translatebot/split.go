package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fractalmind-ai/translatebot/internal/dispatch"
	"github.com/fractalmind-ai/translatebot/internal/textchunk"
)

type splitOptions struct {
	chatLimit   int
	threadLimit int
	chatOnly    bool
	threadOnly  bool
}

func newSplitCmd() *cobra.Command {
	opts := splitOptions{}
	cmd := &cobra.Command{
		Use:   "split [text]",
		Short: "Preview how a text is split into chat messages and a thread",
		Long:  "Reads the text from the arguments, or from stdin when none are given, and prints what would be sent without contacting any platform.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(raw)
			}
			return runSplit(cmd.Context(), cmd.OutOrStdout(), text, opts)
		},
	}
	cmd.Flags().IntVar(&opts.chatLimit, "limit", textchunk.DefaultLongLimit, "maximum characters per chat message")
	cmd.Flags().IntVar(&opts.threadLimit, "thread-limit", textchunk.DefaultThreadLimit, "maximum characters per thread post")
	cmd.Flags().BoolVar(&opts.chatOnly, "chat", false, "only preview chat messages")
	cmd.Flags().BoolVar(&opts.threadOnly, "thread", false, "only preview the thread")
	return cmd
}

func runSplit(ctx context.Context, out io.Writer, text string, opts splitOptions) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("nothing to split")
	}
	preview := &previewWriter{out: out}

	var sinks []dispatch.Sink
	if !opts.threadOnly {
		sinks = append(sinks, &dispatch.ChatSink{Platform: "chat", Sender: preview, MaxLength: opts.chatLimit})
	}
	if !opts.chatOnly {
		sinks = append(sinks, &dispatch.SocialSink{Platform: "thread", Poster: preview, MaxLength: opts.threadLimit})
	}

	outcome := dispatch.NewDispatcher(zerolog.Nop()).Dispatch(ctx, text, sinks...)
	for _, res := range outcome.Ordered() {
		if !res.Success {
			return fmt.Errorf("%s: %s", res.Platform, res.Error)
		}
		fmt.Fprintf(out, "%s: %d unit(s) threaded=%t\n", res.Platform, res.UnitCount, res.Threaded)
	}
	return nil
}

// previewWriter prints messages and posts instead of sending them. The
// dispatcher runs sinks concurrently, so output is serialized per unit.
type previewWriter struct {
	mu    sync.Mutex
	out   io.Writer
	seq   int
	posts int
}

func (p *previewWriter) SendChatMessage(ctx context.Context, chatID, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	fmt.Fprintf(p.out, "--- chat message (%d chars)\n%s\n", utf8.RuneCountInString(text), text)
	return fmt.Sprintf("msg-%d", p.seq), nil
}

func (p *previewWriter) CreatePost(ctx context.Context, text, replyTo string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts++
	id := fmt.Sprintf("post-%d", p.posts)
	target := "none"
	if replyTo != "" {
		target = replyTo
	}
	fmt.Fprintf(p.out, "--- %s reply_to=%s (%d chars)\n%s\n", id, target, utf8.RuneCountInString(text), text)
	return id, nil
}
