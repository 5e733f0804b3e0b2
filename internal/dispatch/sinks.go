package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/fractalmind-ai/translatebot/internal/textchunk"
)

// DefaultPartFormat prefixes each message of a multi-part chat delivery.
const DefaultPartFormat = "📝 Parte %d/%d:\n\n"

var (
	errNothingToSend = errors.New("nothing to send")
	errHeaderTooLong = errors.New("part header does not fit the message limit")
)

// ChatSender sends one message to a chat and returns its message id.
type ChatSender interface {
	SendChatMessage(ctx context.Context, chatID, text string) (string, error)
}

// SocialPoster creates one post, optionally as a reply, and returns its id.
type SocialPoster interface {
	CreatePost(ctx context.Context, text, replyTo string) (string, error)
}

// ChatSink delivers long-form text to a chat, one message per chunk.
type ChatSink struct {
	Platform   string
	ChatID     string
	Sender     ChatSender
	MaxLength  int
	PartFormat string
	// Unit measures MaxLength and MessageLimit. The zero value counts runes.
	Unit textchunk.Unit
	// MessageLimit caps a whole message, part header included. Zero leaves
	// chunks bounded by MaxLength only.
	MessageLimit int
}

func (s *ChatSink) Name() string { return s.Platform }

// Deliver sends chunks in order and stops at the first failed send.
func (s *ChatSink) Deliver(ctx context.Context, text string) Result {
	res := Result{Platform: s.Platform}
	if s.Sender == nil {
		res.Error = fmt.Sprintf("%s sender not configured", s.Platform)
		return res
	}

	format := s.PartFormat
	if format == "" {
		format = DefaultPartFormat
	}
	chunks, err := s.split(text, format)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			res.Error = err.Error()
			return res
		}
		msg := chunk
		if len(chunks) > 1 {
			msg = fmt.Sprintf(format, i+1, len(chunks)) + chunk
		}
		id, err := s.Sender.SendChatMessage(ctx, s.ChatID, msg)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.UnitCount++
		res.IDs = append(res.IDs, id)
	}
	res.Success = true
	return res
}

// split bounds chunks by MaxLength and, when MessageLimit is set, shrinks
// them until every part header fits next to its chunk.
func (s *ChatSink) split(text, format string) ([]string, error) {
	limit := s.MaxLength
	if limit <= 0 {
		limit = textchunk.DefaultLongLimit
	}
	if s.MessageLimit > 0 && limit > s.MessageLimit {
		limit = s.MessageLimit
	}
	chunks := textchunk.SplitUnits(text, limit, s.Unit)
	if len(chunks) == 0 {
		return nil, errNothingToSend
	}
	for s.MessageLimit > 0 && len(chunks) > 1 {
		room := s.MessageLimit - s.Unit.Len(fmt.Sprintf(format, len(chunks), len(chunks)))
		if room >= limit {
			break
		}
		if room < 1 {
			return nil, errHeaderTooLong
		}
		limit = room
		chunks = textchunk.SplitUnits(text, limit, s.Unit)
	}
	return chunks, nil
}

// SocialSink delivers short-form text as a single post or a reply thread.
type SocialSink struct {
	Platform  string
	Poster    SocialPoster
	MaxLength int
}

func (s *SocialSink) Name() string { return s.Platform }

// Deliver posts sequentially; each reply is bound to the id returned for the
// previous post, so a failure ends the thread.
func (s *SocialSink) Deliver(ctx context.Context, text string) Result {
	res := Result{Platform: s.Platform}
	if s.Poster == nil {
		res.Error = fmt.Sprintf("%s client not configured", s.Platform)
		return res
	}

	limit := s.MaxLength
	if limit <= 0 {
		limit = textchunk.DefaultThreadLimit
	}
	posts := textchunk.BuildThread(textchunk.Split(text, limit))
	if len(posts) == 0 {
		res.Error = errNothingToSend.Error()
		return res
	}
	res.Threaded = len(posts) > 1

	previous := ""
	for i := range posts {
		if err := ctx.Err(); err != nil {
			res.Error = err.Error()
			return res
		}
		post := &posts[i]
		post.Bind(previous)
		id, err := s.Poster.CreatePost(ctx, post.Text, post.ReplyTo)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.UnitCount++
		res.IDs = append(res.IDs, id)
		previous = id
	}
	res.Success = true
	return res
}
