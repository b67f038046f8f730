package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/repository"
	"github.com/gapassess/gap/pkg/usecase/chat"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the assistant about your screen time",
		Flags: withFlags(&cfg, nil, storeFlags, llmFlags),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)
			defer cfg.close(ctx)

			m, err := cfg.newAuth(ctx)
			if err != nil {
				return err
			}
			session, err := requireSession(ctx, m)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			persona, err := cfg.newPersona()
			if err != nil {
				return err
			}

			w := c.Root().Writer
			r := &repl{
				w:        w,
				session:  session,
				recorder: repo,
				spin:     spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w)),
			}
			r.spin.Suffix = " " + persona.Name + " is typing..."

			assistant := chat.New(cfg.newGemini(ctx, persona),
				chat.WithPersona(persona),
				chat.WithObserver(r.observe))
			assistant.Init(ctx)

			return r.loop(ctx, assistant, persona)
		},
	}
}

// repl renders an assistant session on a terminal and records every turn
type repl struct {
	w        io.Writer
	session  *model.Session
	recorder repository.ChatRecorder
	spin     *spinner.Spinner

	// set once the current reply has started printing
	printed bool
}

func (r *repl) observe(u chat.Update) {
	if u.Delta == "" {
		return
	}
	if !r.printed {
		r.spin.Stop()
		r.printed = true
	}
	fmt.Fprint(r.w, u.Delta)
}

func (r *repl) loop(ctx context.Context, assistant *chat.Session, persona *chat.Persona) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          r.w,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to start readline")
	}
	defer rl.Close()

	greeting := assistant.Transcript()[0].Text
	fmt.Fprintf(r.w, "%s: %s\n\nType 'exit' to quit.\n", persona.Name, greeting)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		text := strings.TrimSpace(line)
		if text == "exit" || text == "quit" {
			break
		}
		if text == "" {
			continue
		}

		r.turn(ctx, assistant, text)
	}

	fmt.Fprintf(r.w, "\nChat session completed\n")
	return nil
}

func (r *repl) turn(ctx context.Context, assistant *chat.Session, text string) {
	before := len(assistant.Transcript())

	r.printed = false
	r.spin.Start()
	reply, ok := assistant.Send(ctx, text)
	r.spin.Stop()
	if !ok {
		return
	}

	// canned replies arrive without deltas
	if !r.printed {
		fmt.Fprint(r.w, reply.Text)
	}
	fmt.Fprintln(r.w)

	userID := r.session.UserID()
	sessionID := r.session.ChatSessionID
	// the unavailable path appends only the reply
	if len(assistant.Transcript())-before == 2 {
		r.recorder.SaveChatMessage(ctx, userID, model.ChatRoleUser, text, sessionID)
	}
	r.recorder.SaveChatMessage(ctx, userID, model.ChatRoleModel, reply.Text, sessionID)
}

func chatlogCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		limit     int64
		asJSON    bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Only show messages of this chat session",
			Destination: &sessionID,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of messages",
			Value:       repository.DefaultChatLimit,
			Destination: &limit,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print messages as JSON",
			Destination: &asJSON,
		},
	}

	return &cli.Command{
		Name:  "chatlog",
		Usage: "Show recorded chat messages, oldest first",
		Flags: withFlags(&cfg, flags, storeFlags),
		Action: func(ctx context.Context, c *cli.Command) error {
			env, err := cfg.progressEnv(ctx)
			if err != nil {
				return err
			}
			defer cfg.close(env.ctx)

			messages := env.repo.GetChatHistory(env.ctx, env.session.UserID(), model.ChatSessionID(sessionID), int(limit))
			if asJSON {
				return printJSON(c.Root().Writer, messages)
			}
			for _, msg := range messages {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\n", msg.CreatedAt, msg.Role, msg.Content)
			}
			return nil
		},
	}
}
