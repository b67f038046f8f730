package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gapassess/gap/pkg/adapter"
	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/repository"
	"github.com/gapassess/gap/pkg/usecase/auth"
	"github.com/gapassess/gap/pkg/usecase/chat"
	"github.com/gapassess/gap/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	backendLocal     = "local"
	backendPostgres  = "postgres"
	backendFirestore = "firestore"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Storage
	backend     string
	dataDir     string
	bucket      string
	databaseURL string
	databaseKey string
	project     string
	database    string

	// Assistant
	geminiAPIKey string
	geminiModel  string
	personaFile  string

	// blob is shared by the identity provider and the local backend of one command
	blob adapter.BlobStore

	// closers run when the command finishes
	closers []func() error
}

func logFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("GAP_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("GAP_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// storeFlags returns flags selecting and configuring the history backend
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "History backend (local, postgres, firestore)",
			Value:       backendLocal,
			Sources:     cli.EnvVars("GAP_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "Directory for local blobs",
			Value:       "~/.gap",
			Sources:     cli.EnvVars("GAP_DATA_DIR"),
			Destination: &cfg.dataDir,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for local blobs, used instead of data-dir",
			Sources:     cli.EnvVars("GAP_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "database-url",
			Usage:       "PostgreSQL connection URL",
			Sources:     cli.EnvVars("GAP_DATABASE_URL"),
			Destination: &cfg.databaseURL,
		},
		&cli.StringFlag{
			Name:        "database-key",
			Usage:       "PostgreSQL access key, overrides the password in database-url",
			Sources:     cli.EnvVars("GAP_DATABASE_KEY"),
			Destination: &cfg.databaseKey,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// llmFlags returns flags for the assistant
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model, defaults to the persona's model",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "persona",
			Usage:       "Path to a YAML persona file",
			Sources:     cli.EnvVars("GAP_PERSONA_FILE"),
			Destination: &cfg.personaFile,
		},
	}
}

// setup installs the configured logger into ctx
func (cfg *config) setup(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr, logging.WithFormat(logging.Format(cfg.logFormat)))
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

func (cfg *config) close(ctx context.Context) {
	for _, f := range cfg.closers {
		if err := f(); err != nil {
			logging.From(ctx).Warn("failed to close resource", "error", err)
		}
	}
	cfg.closers = nil
	cfg.blob = nil
}

// blobStore returns the process-local key/value store, creating it on first use. A closable
// store is released by close.
func (cfg *config) blobStore(ctx context.Context) (adapter.BlobStore, error) {
	if cfg.blob != nil {
		return cfg.blob, nil
	}

	blob, err := cfg.newBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	if closer, ok := blob.(io.Closer); ok {
		cfg.closers = append(cfg.closers, closer.Close)
	}
	cfg.blob = blob
	return blob, nil
}

func (cfg *config) newBlobStore(ctx context.Context) (adapter.BlobStore, error) {
	if cfg.bucket != "" {
		blob, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create storage")
		}
		return blob, nil
	}

	dir, err := expandHome(cfg.dataDir)
	if err != nil {
		return nil, err
	}
	blob, err := adapter.NewFileBlobStore(dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create blob store")
	}
	return blob, nil
}

func expandHome(dir string) (string, error) {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~")), nil
}

func (cfg *config) newAuth(ctx context.Context) (*auth.Mock, error) {
	blob, err := cfg.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	return auth.NewMock(blob), nil
}

// newRepository builds the configured backend. A remote backend without credentials falls
// back to the local one with a warning.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	logger := logging.From(ctx)

	switch cfg.backend {
	case backendPostgres:
		if cfg.databaseURL == "" {
			logger.Warn("database-url is not set, falling back to local backend")
			break
		}
		db, err := adapter.NewPostgres(ctx, cfg.databaseURL, cfg.databaseKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to connect postgres")
		}
		cfg.closers = append(cfg.closers, db.Close)
		return repository.NewRemote(db), nil

	case backendFirestore:
		if cfg.project == "" {
			logger.Warn("project is not set, falling back to local backend")
			break
		}
		db, err := adapter.NewFirestore(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore client")
		}
		cfg.closers = append(cfg.closers, db.Close)
		return repository.NewRemote(db), nil

	case backendLocal, "":

	default:
		return nil, goerr.Wrap(model.ErrInvalidArgument, "unknown backend", goerr.V("backend", cfg.backend))
	}

	blob, err := cfg.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	return repository.NewLocal(blob), nil
}

func (cfg *config) newPersona() (*chat.Persona, error) {
	persona, err := chat.LoadPersona(cfg.personaFile)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load persona")
	}
	return persona, nil
}

// newGemini returns nil when no API key is configured or the client cannot be created, so
// the assistant runs degraded instead of failing the command.
func (cfg *config) newGemini(ctx context.Context, persona *chat.Persona) adapter.Gemini {
	if cfg.geminiAPIKey == "" {
		logging.From(ctx).Warn("gemini-api-key is not set, assistant is unavailable")
		return nil
	}

	modelName := cfg.geminiModel
	if modelName == "" {
		modelName = persona.Model
	}

	client, err := adapter.NewGemini(ctx, cfg.geminiAPIKey, adapter.WithGenerativeModel(modelName))
	if err != nil {
		logging.From(ctx).Warn("failed to create gemini client, assistant is unavailable", "error", err)
		return nil
	}
	return client
}
