package cli

import (
	"context"
	"fmt"

	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/usecase/auth"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func credentialFlags(email, password *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "email",
			Aliases:     []string{"e"},
			Usage:       "Email address",
			Sources:     cli.EnvVars("GAP_EMAIL"),
			Destination: email,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "password",
			Usage:       "Password",
			Sources:     cli.EnvVars("GAP_PASSWORD"),
			Destination: password,
			Required:    true,
		},
	}
}

type signInFunc func(ctx context.Context, m *auth.Mock) (*model.Session, error)

func signInAction(cfg *config, signIn signInFunc) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		ctx = cfg.setup(ctx)
		defer cfg.close(ctx)

		m, err := cfg.newAuth(ctx)
		if err != nil {
			return err
		}

		session, err := signIn(ctx, m)
		if err != nil {
			return goerr.Wrap(err, "failed to sign in")
		}

		fmt.Fprintf(c.Root().Writer, "Signed in as %s <%s> (id: %s)\n",
			session.User.Name, session.User.Email, session.UserID())
		return nil
	}
}

func signupCommand() *cli.Command {
	var (
		cfg             config
		email, password string
	)

	return &cli.Command{
		Name:  "signup",
		Usage: "Create an account and sign in",
		Flags: withFlags(&cfg, credentialFlags(&email, &password), storeFlags),
		Action: signInAction(&cfg, func(ctx context.Context, m *auth.Mock) (*model.Session, error) {
			return m.Signup(ctx, email, password)
		}),
	}
}

func loginCommand() *cli.Command {
	var (
		cfg             config
		email, password string
	)

	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with email and password",
		Flags: withFlags(&cfg, credentialFlags(&email, &password), storeFlags),
		Action: signInAction(&cfg, func(ctx context.Context, m *auth.Mock) (*model.Session, error) {
			return m.Login(ctx, email, password)
		}),
	}
}

func googleLoginCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "google-login",
		Usage: "Sign in with the demo Google account",
		Flags: withFlags(&cfg, nil, storeFlags),
		Action: signInAction(&cfg, func(ctx context.Context, m *auth.Mock) (*model.Session, error) {
			return m.GoogleLogin(ctx)
		}),
	}
}

func logoutCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and discard the assessment draft",
		Flags: withFlags(&cfg, nil, storeFlags),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)
			defer cfg.close(ctx)

			m, err := cfg.newAuth(ctx)
			if err != nil {
				return err
			}
			if err := m.Logout(ctx); err != nil {
				return goerr.Wrap(err, "failed to sign out")
			}

			fmt.Fprintf(c.Root().Writer, "Signed out\n")
			return nil
		},
	}
}

func whoamiCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Flags: withFlags(&cfg, nil, storeFlags),
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

			u := session.User
			fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Provider)
			return nil
		},
	}
}
