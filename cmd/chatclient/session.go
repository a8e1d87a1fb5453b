package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"timebank-chat/internal/chattypes"
	"timebank-chat/internal/timeline"
)

var errNoIdentity = errors.New("a user id is required to send messages")

type sender interface {
	Send(env chattypes.Envelope) bool
}

// session turns input lines into timeline updates and outbound envelopes.
type session struct {
	me       chattypes.Sender
	conn     sender
	timeline *timeline.Timeline
	out      io.Writer
	now      func() time.Time
}

func newSession(me chattypes.Sender, conn sender, tl *timeline.Timeline, out io.Writer) (*session, error) {
	if strings.TrimSpace(me.ID) == "" {
		return nil, errNoIdentity
	}
	if me.Name == "" {
		me.Name = me.ID
	}
	return &session{me: me, conn: conn, timeline: tl, out: out, now: time.Now}, nil
}

// printMessage is the timeline render hook.
func (s *session) printMessage(msg chattypes.ChatMessage) {
	fmt.Fprintf(s.out, "[%s] %s: %s  (%s)\n", clock(msg.Timestamp), msg.Sender.Name, msg.Content, msg.ID)
}

func clock(ts chattypes.Timestamp) string {
	t, ok := ts.Time()
	if !ok {
		return "--:--:--"
	}
	return t.Local().Format("15:04:05")
}

// handleLine processes one input line and reports whether the user asked to quit.
func (s *session) handleLine(line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		s.say(line)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true
	case "/react":
		if len(fields) != 3 {
			fmt.Fprintln(s.out, "usage: /react <messageId> <emoji>")
			return false
		}
		s.react(fields[1], fields[2])
	case "/edit":
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 {
			fmt.Fprintln(s.out, "usage: /edit <messageId> <text>")
			return false
		}
		// 编辑不会发送：其他客户端按 id 去重，重发同 id 的消息不会更新他们的显示
		if !s.timeline.Edit(parts[1], parts[2]) {
			fmt.Fprintf(s.out, "no message %s\n", parts[1])
			return false
		}
		fmt.Fprintln(s.out, "(edited locally: other participants still see the original)")
	case "/list":
		for _, msg := range s.timeline.Messages() {
			s.printMessage(msg)
			for _, r := range msg.Reactions {
				fmt.Fprintf(s.out, "    %s %d\n", r.Emoji, len(r.Users))
			}
		}
	default:
		fmt.Fprintf(s.out, "unknown command %s\n", fields[0])
	}
	return false
}

func (s *session) say(content string) {
	msg := chattypes.NewMessage(s.me, content, s.now())
	s.timeline.AppendLocal(msg)
	if !s.conn.Send(chattypes.NewMessageEnvelope(msg)) {
		fmt.Fprintln(s.out, "(offline: message shown locally only)")
	}
}

func (s *session) react(messageID, emoji string) {
	if !s.timeline.React(messageID, emoji, s.me.ID) {
		fmt.Fprintf(s.out, "no message %s\n", messageID)
		return
	}
	if !s.conn.Send(chattypes.NewReactionEnvelope(messageID, emoji, s.me.ID)) {
		fmt.Fprintln(s.out, "(offline: reaction shown locally only)")
	}
}

// run reads lines until EOF, /quit or ctx cancellation.
func (s *session) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				log.Debug().Msg("输入结束")
				return nil
			}
			if s.handleLine(line) {
				return nil
			}
		}
	}
}
