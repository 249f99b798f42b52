package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/mtzanidakis/counterman/internal/chat"
	"github.com/mtzanidakis/counterman/internal/config"
	"github.com/mtzanidakis/counterman/internal/conversation"
)

type answerer interface {
	Answer(ctx context.Context, msgs []conversation.Message) (chat.Reply, error)
}

func runChat() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Log.Level == "info" {
		cfg.Log.Level = "warn" // keep the terminal for the conversation
	}
	setupLogging(cfg.Log)

	runner, err := buildRunner(cfg, nil)
	if err != nil {
		return err
	}
	svc := chat.New(runner, chat.Config{Budget: cfg.Turn.Budget})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(os.Stderr, "counterman %s (%s profile). Type %s to start over, Ctrl-D to quit.\n", version, cfg.Profile, chat.ClearCommand)
	return chatLoop(ctx, svc, os.Stdin, os.Stdout)
}

// chatLoop keeps the conversation in memory. Failed turns are not added
// to it, so the user can simply retry.
func chatLoop(ctx context.Context, svc answerer, in io.Reader, out io.Writer) error {
	var history []conversation.Message
	scanner := bufio.NewScanner(in)

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == chat.ClearCommand:
			history = nil
			fmt.Fprintln(out, chat.ClearedReply)
		default:
			user := conversation.UserMessage(line)
			reply, err := svc.Answer(ctx, append(history, user))
			if err == nil {
				history = append(history, user, conversation.AgentMessage(conversation.HumanInteraction, reply.Message))
			}
			fmt.Fprintln(out, reply.Message)
			if reply.OutputImage != "" {
				fmt.Fprintf(out, "[image] %s\n", reply.OutputImage)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
