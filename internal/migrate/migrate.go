// Package migrate applies the embedded goph-talk schema migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/and161185/goph-talk/migrations"
)

const dialect = "postgres"

// Up runs all pending migrations from the embedded filesystem and logs the
// resulting schema version.
func Up(ctx context.Context, dsn string, log *zap.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ver, err := apply(ctx, db, migrations.FS, log)
	if err != nil {
		return err
	}
	log.Info("schema up to date", zap.Int64("version", ver))
	return nil
}

// apply runs fsys's migrations against db and returns the version it ends at.
func apply(ctx context.Context, db *sql.DB, fsys fs.FS, log *zap.Logger) (int64, error) {
	if log == nil {
		log = zap.NewNop()
	}
	goose.SetBaseFS(fsys)
	goose.SetLogger(gooseLogger{log.Named("goose").Sugar()})
	if err := goose.SetDialect(dialect); err != nil {
		return 0, err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

// gooseLogger routes goose output through zap.
type gooseLogger struct{ s *zap.SugaredLogger }

func (l gooseLogger) Printf(format string, v ...any) { l.s.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...any) { l.s.Fatalf(format, v...) }
