// Package questionscmder provides the questions command that generates study
// questions for a topic.
package questionscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/classroom/pkg/chat"
	"github.com/papercomputeco/classroom/pkg/cliui"
	"github.com/papercomputeco/classroom/pkg/config"
	"github.com/papercomputeco/classroom/pkg/llm/upstream"
	"github.com/papercomputeco/classroom/pkg/logger"
	"github.com/papercomputeco/classroom/pkg/questions"
)

// fetcher returns the questions for a topic.
type fetcher interface {
	Fetch(ctx context.Context, topic string) ([]string, error)
}

type fetcherFunc func(ctx context.Context, topic string) ([]string, error)

func (f fetcherFunc) Fetch(ctx context.Context, topic string) ([]string, error) {
	return f(ctx, topic)
}

type questionsCommander struct {
	endpoint string
	token    string
	local    bool
	jsonOut  bool
	debug    bool

	viper  *viper.Viper
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
}

const questionsLongDesc string = `Generate study questions for a topic.

By default the topic is sent to the generate-questions endpoint of a running
classroom service. With --local the questions are generated in-process,
calling the upstream API directly with the configured API key.

Examples:
  classroom questions photosynthesis
  classroom questions "the French revolution" --json
  MISTRAL_API_KEY=... classroom questions --local "plate tectonics"`

const questionsShortDesc string = "Generate study questions for a topic"

var flagKeys = []string{
	config.FlagQuestionsEndpoint,
	config.FlagToken,
	config.FlagUpstream,
	config.FlagModel,
}

func NewQuestionsCmd() *cobra.Command {
	cmder := &questionsCommander{}

	var (
		upstreamURL string
		model       string
	)

	cmd := &cobra.Command{
		Use:   "questions <topic>",
		Short: questionsShortDesc,
		Long:  questionsLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)
			cmder.viper = v

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()
			cmder.logger = logger.New(
				logger.WithDebug(cmder.debug),
				logger.WithPretty(true),
				logger.WithWriter(cmder.errOut),
			)

			cfg := config.FromViper(cmder.viper)
			cmder.endpoint = cfg.Client.QuestionsEndpoint
			cmder.token = cfg.Client.Token

			return cmder.run(cmd.Context(), cmder.newFetcher(cfg), strings.Join(args, " "))
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagQuestionsEndpoint, &cmder.endpoint)
	config.AddStringFlag(cmd, config.Flags, config.FlagToken, &cmder.token)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &upstreamURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &model)
	cmd.Flags().BoolVar(&cmder.local, "local", false, "Generate in-process instead of calling a classroom service")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, `Print {"questions": [...]} instead of a numbered list`)

	return cmd
}

func (c *questionsCommander) newFetcher(cfg *config.Config) fetcher {
	if !c.local {
		return &questions.Client{
			Endpoint: c.endpoint,
			Token:    c.token,
		}
	}

	var completer questions.Completer
	if cfg.Upstream.APIKey != "" {
		completer = upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, c.logger)
	}

	g := questions.NewGenerator(completer, c.logger)
	if cfg.Upstream.Model != "" {
		g.Model = cfg.Upstream.Model
	}
	return fetcherFunc(g.Generate)
}

func (c *questionsCommander) run(ctx context.Context, f fetcher, topic string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(topic) == "" {
		return questions.ErrTopicRequired
	}

	var qs []string
	err := cliui.Step(c.errOut, "Generating questions", func() error {
		var err error
		qs, err = f.Fetch(ctx, topic)
		return err
	})
	if err != nil {
		if chat.IsUserVisible(err) {
			return fmt.Errorf("generating questions: %s", chat.UserMessage(err))
		}
		return err
	}

	if qs == nil {
		qs = []string{}
	}

	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(questions.Response{Questions: qs})
	}

	if len(qs) == 0 {
		fmt.Fprintln(c.out, cliui.DimStyle.Render("No questions returned."))
		return nil
	}

	cliui.NumberedList(c.out, qs)
	return nil
}
