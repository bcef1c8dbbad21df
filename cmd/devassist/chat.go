package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/devassist/client"
	"github.com/hupe1980/devassist/core"
)

var (
	chatServer   string
	chatToken    string
	chatNoStream bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to a running devassist server",
	Long: `Sends a message to a devassist server and renders the answer as it streams.
Without a message an interactive session is started; type "exit" to leave
and "clear" to drop the conversation history.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatServer, "server", "http://localhost:8080", "Server base URL")
	chatCmd.Flags().StringVar(&chatToken, "token", "", "Bearer token (defaults to DEV_AUTH_TOKEN)")
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "Wait for the complete answer")
}

func runChat(cmd *cobra.Command, args []string) error {
	token := chatToken
	if token == "" {
		token = cfg.Server.AuthToken
	}
	c := client.New(chatServer, func(o *client.Options) { o.Token = token })
	s := &chatSession{client: c, out: cmd.OutOrStdout(), stream: !chatNoStream}

	if len(args) > 0 {
		return s.send(cmd.Context(), strings.Join(args, " "))
	}
	return s.interactive(cmd.Context(), cmd.InOrStdin())
}

// chatSession keeps the conversation history between turns.
type chatSession struct {
	client  *client.Client
	out     io.Writer
	stream  bool
	history []core.Message
}

func (s *chatSession) interactive(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.out, accentStyle.Render("devassist")+" "+mutedStyle.Render(chatServer))
	fmt.Fprintln(s.out, mutedStyle.Render(`Type "exit" to quit, "clear" to reset the conversation.`))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, valueStyle.Render("> "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "clear":
			s.history = nil
			fmt.Fprintln(s.out, okStyle.Render("✓ Context cleared"))
			continue
		}
		if err := s.send(ctx, line); err != nil {
			printError("chat", err)
		}
	}
}

func (s *chatSession) send(ctx context.Context, text string) error {
	messages := append(append([]core.Message(nil), s.history...), core.NewTextMessage(core.RoleUser, text))

	var (
		res *client.ChatResult
		err error
	)
	if s.stream {
		res, err = s.client.Stream(ctx, messages, s.render)
	} else {
		res, err = s.client.Chat(ctx, messages)
		if err == nil {
			fmt.Fprintln(s.out, res.Response)
		}
	}
	if err != nil {
		fmt.Fprintln(s.out)
		return err
	}

	if len(res.ToolsUsed) > 0 {
		fmt.Fprintln(s.out, mutedStyle.Render("tools: "+strings.Join(res.ToolsUsed, ", ")))
	}
	s.history = append(messages, core.NewTextMessage(core.RoleAssistant, res.Response))
	return nil
}

func (s *chatSession) render(ev core.Event) error {
	switch ev.Kind {
	case core.EventText:
		fmt.Fprint(s.out, ev.Text)
	case core.EventTool:
		fmt.Fprintln(s.out, toolStyle.Render("🔧 "+ev.Tool))
	case core.EventDone:
		fmt.Fprintln(s.out)
	case core.EventError:
		for _, m := range ev.Mutations {
			fmt.Fprintln(os.Stderr, toolStyle.Render("applied: "+m))
		}
	}
	return nil
}
