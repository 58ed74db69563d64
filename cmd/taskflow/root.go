package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskflow/domain"
	"taskflow/storage"
	"taskflow/suggest"
)

// app holds what a command needs once the persistent flags are resolved.
type app struct {
	configPath string
	dbPath     string
	user       string
	verbose    bool

	cfg    cliConfig
	db     *storage.SQLite
	ws     *domain.Workspace
	boards domain.Boards
	log    *log.Logger

	now      func() time.Time
	provider suggest.Provider
}

func newApp() *app {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(log.WarnLevel)
	return &app{log: logger, now: time.Now}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "taskflow",
		Short:        "Personal task manager with board views and suggested tasks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/taskflow/config.yaml)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database file")
	root.PersistentFlags().StringVar(&a.user, "user", "", "workspace owner")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newAddCmd(a),
		newListCmd(a),
		newToggleCmd(a),
		newDeleteCmd(a),
		newSuggestCmd(a),
		newBoardsCmd(a),
		newStatsCmd(a),
		newCalendarCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	if a.verbose {
		a.log.SetLevel(log.DebugLevel)
	}
	path := a.configPath
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return err
		}
	}
	cfg, err := loadCLIConfig(path)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database = a.dbPath
	}
	if a.user != "" {
		cfg.User = a.user
	}
	a.cfg = cfg

	a.boards = domain.SeedBoards()
	if cfg.BoardsFile != "" {
		if a.boards, err = domain.LoadBoardsFile(cfg.BoardsFile); err != nil {
			return err
		}
	}
	loc, err := cfg.location()
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if a.db, err = storage.OpenSQLite(cfg.Database); err != nil {
		return err
	}
	a.log.WithFields(log.Fields{"db": cfg.Database, "user": cfg.User}).Debug("workspace opened")
	a.ws = domain.OpenWorkspace(cmd.Context(), a.db, cfg.User,
		domain.WithClock(a.now),
		domain.WithLocation(loc),
		domain.WithLogger(a.log),
	)
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *app) boardName(id string) string {
	if b, ok := a.boards.Find(id); ok {
		return b.Name
	}
	return id
}

func (a *app) checkBoard(id string) error {
	if id == "" {
		return nil
	}
	if _, ok := a.boards.Find(id); !ok {
		return fmt.Errorf("unknown board %q", id)
	}
	return nil
}
