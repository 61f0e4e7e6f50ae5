// Package chatcmder provides the chat command for talking to the classroom
// tutor from a terminal through a running classroom service.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/classroom/pkg/chat"
	"github.com/papercomputeco/classroom/pkg/cliui"
	"github.com/papercomputeco/classroom/pkg/config"
	"github.com/papercomputeco/classroom/pkg/dotdir"
	"github.com/papercomputeco/classroom/pkg/llm"
	"github.com/papercomputeco/classroom/pkg/logger"
)

const (
	cmdExit = "/exit"
	cmdNew  = "/new"
)

type chatCommander struct {
	endpoint   string
	token      string
	newSession bool
	markdown   bool
	configDir  string
	debug      bool

	viper  *viper.Viper
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
	ddm    *dotdir.Manager
}

const chatLongDesc string = `Start an interactive chat with the classroom tutor.

Messages are sent to the chat-with-ai endpoint of a running classroom service
and the reply is printed as it streams in. The conversation and its session id
are saved in the .classroom/ directory, so re-running "classroom chat" resumes
where you left off. The service stores every turn under that session id.

Type /new to start a fresh conversation and /exit (or Ctrl+D) to quit.

Examples:
  classroom chat
  classroom chat --new
  classroom chat --endpoint https://example.supabase.co/functions/v1/chat-with-ai --token $ANON_KEY`

const chatShortDesc string = "Chat with the classroom tutor"

var flagKeys = []string{
	config.FlagChatEndpoint,
	config.FlagToken,
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)
			cmder.viper = v

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cfg := config.FromViper(cmder.viper)
			cmder.endpoint = cfg.Client.ChatEndpoint
			cmder.token = cfg.Client.Token
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagChatEndpoint, &cmder.endpoint)
	config.AddStringFlag(cmd, config.Flags, config.FlagToken, &cmder.token)
	cmd.Flags().BoolVarP(&cmder.newSession, "new", "n", false, "Start a new conversation instead of resuming the saved one")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render each reply as markdown once it is complete")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.logger == nil {
		c.logger = logger.New(
			logger.WithDebug(c.debug),
			logger.WithPretty(true),
			logger.WithWriter(c.errOut),
		)
	}
	if c.ddm == nil {
		c.ddm = dotdir.NewManager()
	}

	state, err := c.loadSession()
	if err != nil {
		return err
	}

	conv := chat.NewConversation(state.Messages...)
	client := chat.NewClient(chat.ClientConfig{
		Endpoint:  c.endpoint,
		Token:     c.token,
		SessionID: state.SessionID,
		Logger:    c.logger,
	})

	fmt.Fprintln(c.out)
	if conv.Len() > 0 {
		fmt.Fprintf(c.out, "  %s Resuming session %s %s\n",
			cliui.SuccessMark,
			cliui.KeyStyle.Render(state.SessionID),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", conv.Len())),
		)
	} else {
		fmt.Fprintf(c.out, "  %s New session %s\n", cliui.DimStyle.Render("●"), cliui.KeyStyle.Render(state.SessionID))
	}
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /new starts over, /exit or Ctrl+D quits."))

	scanner := bufio.NewScanner(c.in)

	for {
		fmt.Fprint(c.out, cliui.Prompt(c.out, llm.RoleUser))
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case cmdExit:
			fmt.Fprintln(c.out)
			return nil
		case cmdNew:
			state = &dotdir.SessionState{SessionID: uuid.NewString()}
			conv.Reset()
			client = chat.NewClient(chat.ClientConfig{
				Endpoint:  c.endpoint,
				Token:     c.token,
				SessionID: state.SessionID,
				Logger:    c.logger,
			})
			if err := c.ddm.ClearSession(c.configDir); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "  %s New session %s\n\n", cliui.DimStyle.Render("●"), cliui.KeyStyle.Render(state.SessionID))
			continue
		}

		conv.AddUser(input)
		if err := c.exchange(ctx, client, conv); err != nil {
			return err
		}

		state.Messages = conv.Messages()
		if err := c.ddm.SaveSession(state, c.configDir); err != nil {
			c.logger.Warn("could not save chat session", "error", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// exchange streams one reply. Failures before the first delta are shown as a
// notification and the unanswered message is dropped so it can be retried;
// an interrupted stream keeps its partial reply. Only a canceled context is
// returned as an error.
func (c *chatCommander) exchange(ctx context.Context, client *chat.Client, conv *chat.Conversation) error {
	var (
		reply string
		err   error
	)

	if c.markdown {
		_ = cliui.Step(c.errOut, "Thinking", func() error {
			reply, err = client.Stream(ctx, conv, nil)
			return err
		})
		if reply != "" {
			fmt.Fprint(c.out, cliui.Prompt(c.out, llm.RoleAssistant))
			rendered, renderErr := cliui.RenderMarkdown(reply)
			if renderErr != nil {
				c.logger.Debug("markdown rendering failed", "error", renderErr)
			}
			fmt.Fprint(c.out, rendered)
		}
	} else {
		fmt.Fprint(c.out, cliui.Prompt(c.out, llm.RoleAssistant))
		reply, err = client.Stream(ctx, conv, func(delta string) {
			fmt.Fprint(c.out, delta)
		})
		fmt.Fprintln(c.out)
	}
	fmt.Fprintln(c.out)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, chat.ErrInterrupted):
		cliui.Notify(c.errOut, "connection lost, reply is incomplete")
		return nil
	default:
		c.logger.Debug("chat request failed", "error", err)
		conv.DiscardPendingUser()
		if chat.IsUserVisible(err) {
			cliui.Notify(c.errOut, chat.UserMessage(err))
		} else {
			cliui.Notify(c.errOut, chat.DefaultUserMessage)
		}
		return nil
	}
}

func (c *chatCommander) loadSession() (*dotdir.SessionState, error) {
	if c.newSession {
		if err := c.ddm.ClearSession(c.configDir); err != nil {
			return nil, err
		}
		return &dotdir.SessionState{SessionID: uuid.NewString()}, nil
	}

	state, err := c.ddm.LoadSession(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("loading chat session: %w", err)
	}
	if state == nil || state.SessionID == "" {
		state = &dotdir.SessionState{SessionID: uuid.NewString()}
	}

	return state, nil
}
