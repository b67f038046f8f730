package cli

import (
	"context"
	"io"

	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/usecase/auth"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

type runConfig struct {
	reader io.Reader
	writer io.Writer
}

type Option func(*runConfig)

// WithIO replaces stdin and stdout of the command tree
func WithIO(r io.Reader, w io.Writer) Option {
	return func(c *runConfig) {
		c.reader = r
		c.writer = w
	}
}

func Run(ctx context.Context, argv []string, opts ...Option) *Error {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	cmd := &cli.Command{
		Name:   "gap",
		Usage:  "Track gadget dependence assessments over time",
		Reader: rc.reader,
		Writer: rc.writer,
		Commands: []*cli.Command{
			signupCommand(),
			loginCommand(),
			googleLoginCommand(),
			logoutCommand(),
			whoamiCommand(),
			saveCommand(),
			historyCommand(),
			latestCommand(),
			baselineCommand(),
			compareCommand(),
			chatCommand(),
			chatlogCommand(),
			migrateCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

// ErrNotSignedIn is returned by commands that need a persisted session
var ErrNotSignedIn = goerr.New("not signed in, run `gap login` first")

func requireSession(ctx context.Context, m *auth.Mock) (*model.Session, error) {
	session := m.Current(ctx)
	if session == nil {
		return nil, ErrNotSignedIn
	}
	return session, nil
}

func withFlags(cfg *config, flags []cli.Flag, groups ...func(*config) []cli.Flag) []cli.Flag {
	flags = append(flags, logFlags(cfg)...)
	for _, group := range groups {
		flags = append(flags, group(cfg)...)
	}
	return flags
}
