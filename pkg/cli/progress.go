package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/repository"
	"github.com/gapassess/gap/pkg/usecase/progress"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// progressEnv is what every progress command needs once flags are parsed
type progressEnv struct {
	ctx     context.Context
	session *model.Session
	repo    repository.Repository
	uc      *progress.UseCase
}

// progressEnv prepares a signed-in command. On success the caller owns cfg.close.
func (cfg *config) progressEnv(ctx context.Context) (*progressEnv, error) {
	ctx = cfg.setup(ctx)

	env, err := cfg.buildProgressEnv(ctx)
	if err != nil {
		cfg.close(ctx)
		return nil, err
	}
	return env, nil
}

func (cfg *config) buildProgressEnv(ctx context.Context) (*progressEnv, error) {
	m, err := cfg.newAuth(ctx)
	if err != nil {
		return nil, err
	}
	session, err := requireSession(ctx, m)
	if err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	return &progressEnv{ctx: ctx, session: session, repo: repo, uc: progress.New(repo)}, nil
}

// assessmentFile is the input format of the save command
type assessmentFile struct {
	Inputs model.AssessmentData   `json:"inputs"`
	Result model.PredictionResult `json:"result"`
}

func readAssessment(path string, stdin io.Reader) (*assessmentFile, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read assessment", goerr.V("path", path))
	}

	var a assessmentFile
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, goerr.Wrap(err, "failed to parse assessment", goerr.V("path", path))
	}
	if a.Result == nil {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "assessment has no result", goerr.V("path", path))
	}
	return &a, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal output")
	}
	fmt.Fprintf(w, "%s\n", string(data))
	return nil
}

func saveCommand() *cli.Command {
	var (
		cfg   config
		input string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to a JSON file with inputs and result, or - for stdin",
			Value:       "-",
			Destination: &input,
		},
	}

	return &cli.Command{
		Name:  "save",
		Usage: "Save an assessment result",
		Flags: withFlags(&cfg, flags, storeFlags),
		Action: func(ctx context.Context, c *cli.Command) error {
			env, err := cfg.progressEnv(ctx)
			if err != nil {
				return err
			}
			defer cfg.close(env.ctx)

			a, err := readAssessment(input, c.Root().Reader)
			if err != nil {
				return err
			}

			entry, err := env.uc.Save(env.ctx, env.session, a.Inputs, a.Result)
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, entry)
		},
	}
}

func historyCommand() *cli.Command {
	var (
		cfg    config
		order  string
		asJSON bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "order",
			Aliases:     []string{"o"},
			Usage:       "Sort order (asc, desc)",
			Value:       string(model.SortDesc),
			Destination: &order,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print entries as JSON",
			Destination: &asJSON,
		},
	}

	return &cli.Command{
		Name:  "history",
		Usage: "List saved assessments",
		Flags: withFlags(&cfg, flags, storeFlags),
		Action: func(ctx context.Context, c *cli.Command) error {
			env, err := cfg.progressEnv(ctx)
			if err != nil {
				return err
			}
			defer cfg.close(env.ctx)

			entries := env.uc.History(env.ctx, env.session, model.SortDirection(order))
			if asJSON {
				return printJSON(c.Root().Writer, entries)
			}

			for _, e := range entries {
				score := "-"
				if v, ok := e.ProgressPayload.Result["score"]; ok {
					score = fmt.Sprint(v)
				}
				_, enriched := e.ProgressPayload.Result.AIAnalysis()
				fmt.Fprintf(c.Root().Writer, "%s\t%s\tscore=%s\tanalysis=%t\n", e.Timestamp, e.EntryID, score, enriched)
			}
			return nil
		},
	}
}

func singleEntryCommand(name, usage string, get func(*progressEnv) *model.ProgressEntry) *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: withFlags(&cfg, nil, storeFlags),
		Action: func(ctx context.Context, c *cli.Command) error {
			env, err := cfg.progressEnv(ctx)
			if err != nil {
				return err
			}
			defer cfg.close(env.ctx)

			entry := get(env)
			if entry == nil {
				fmt.Fprintf(c.Root().Writer, "No assessments yet\n")
				return nil
			}
			return printJSON(c.Root().Writer, entry)
		},
	}
}

func latestCommand() *cli.Command {
	return singleEntryCommand("latest", "Show the most recent assessment", func(env *progressEnv) *model.ProgressEntry {
		return env.uc.Latest(env.ctx, env.session)
	})
}

func baselineCommand() *cli.Command {
	return singleEntryCommand("baseline", "Show the first assessment", func(env *progressEnv) *model.ProgressEntry {
		return env.uc.Baseline(env.ctx, env.session)
	})
}

func compareCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "compare",
		Usage: "Compare the latest assessment with the baseline",
		Flags: withFlags(&cfg, nil, storeFlags),
		Action: func(ctx context.Context, c *cli.Command) error {
			env, err := cfg.progressEnv(ctx)
			if err != nil {
				return err
			}
			defer cfg.close(env.ctx)

			w := c.Root().Writer
			cmp := env.uc.Compare(env.ctx, env.session)
			if cmp == nil {
				fmt.Fprintf(w, "No assessments yet\n")
				return nil
			}

			fmt.Fprintf(w, "Assessments: %d\n", cmp.Entries)
			fmt.Fprintf(w, "Baseline:    %s (%s)\n", cmp.Baseline.Timestamp, cmp.Baseline.EntryID)
			fmt.Fprintf(w, "Latest:      %s (%s)\n", cmp.Latest.Timestamp, cmp.Latest.EntryID)
			if !cmp.HasScore {
				fmt.Fprintf(w, "Score:       not available\n")
				return nil
			}

			trend := "no change"
			switch {
			case cmp.Improved():
				trend = "improved"
			case cmp.Delta() > 0:
				trend = "worse"
			}
			fmt.Fprintf(w, "Score:       %g -> %g (%+g, %s)\n", cmp.BaselineScore, cmp.LatestScore, cmp.Delta(), trend)
			return nil
		},
	}
}
