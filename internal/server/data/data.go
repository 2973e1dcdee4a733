// Package data stores the users, sessions and automations of Gristips.
package data

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/logging"
	"github.com/gristips/gristips/internal/server/models"
	"github.com/gristips/gristips/uid"
)

// NewDB creates a new database connection and migrates the schema before
// returning the connection.
func NewDB(connection gorm.Dialector) (*gorm.DB, error) {
	db, err := newRawDB(connection)
	if err != nil {
		return nil, fmt.Errorf("db conn: %w", err)
	}

	if err = migrate(db); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// newRawDB creates a new database connection without running migrations.
func newRawDB(connection gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(connection, &gorm.Config{
		Logger: logging.NewDatabaseLogger(time.Second),
	})
	if err != nil {
		return nil, err
	}

	if connection.Name() == "sqlite" {
		// avoid issues with concurrent writes by telling gorm
		// not to open multiple connections in the connection pool
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("getting db driver: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Automation{},
	)
}

func NewSQLiteDriver(connection string) (gorm.Dialector, error) {
	if !strings.HasPrefix(connection, "file::memory") {
		if err := os.MkdirAll(path.Dir(connection), os.ModePerm); err != nil {
			return nil, err
		}
	}
	uri, err := url.Parse(connection)
	if err != nil {
		return nil, err
	}
	query := uri.Query()
	query.Add("_journal_mode", "WAL")
	uri.RawQuery = query.Encode()
	connection = uri.String()

	return sqlite.Open(connection), nil
}

func NewPostgresDriver(connection string) (gorm.Dialector, error) {
	return postgres.Open(connection), nil
}

func get[T models.Modelable](db *gorm.DB, selectors ...SelectorFunc) (*T, error) {
	for _, selector := range selectors {
		db = selector(db)
	}

	result := new(T)
	if err := db.Model((*T)(nil)).First(result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrNotFound
		}

		return nil, err
	}

	return result, nil
}

func list[T models.Modelable](db *gorm.DB, p *models.Pagination, selectors ...SelectorFunc) ([]T, error) {
	db = db.Order("id ASC")
	for _, selector := range selectors {
		db = selector(db)
	}

	if p != nil {
		var count int64
		if err := db.Model((*T)(nil)).Count(&count).Error; err != nil {
			return nil, err
		}
		p.SetTotalCount(int(count))

		db = ByPagination(*p)(db)
	}

	result := make([]T, 0)
	if err := db.Model((*T)(nil)).Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

func save[T models.Modelable](db *gorm.DB, model *T) error {
	err := db.Save(model).Error
	return handleError(err)
}

func add[T models.Modelable](db *gorm.DB, model *T) error {
	err := db.Create(model).Error
	return handleError(err)
}

func delete[T models.Modelable](db *gorm.DB, id uid.ID) error {
	return db.Delete(new(T), id).Error
}

type UniqueConstraintError struct {
	Table  string
	Column string
}

func (e UniqueConstraintError) Error() string {
	table := e.Table
	switch table {
	case "":
		return "value already exists"
	default:
		table = strings.TrimSuffix(table, "s")
	}

	article := "a"
	if strings.ContainsRune("aeiou", rune(table[0])) {
		article = "an"
	}

	if e.Column == "" {
		return fmt.Sprintf("%v %v with that value already exists", article, table)
	}
	return fmt.Sprintf("%v %v with that %v already exists", article, table, e.Column)
}

// constraintFields maps the name of a unique constraint, or the columns
// reported by sqlite, to the user facing name of that field.
var constraintFields = map[string]string{
	"idx_users_subject":            "subject",
	"idx_sessions_key_id":          "keyId",
	"idx_automations_user_id_name": "name",
	"subject":                      "subject",
	"key_id":                       "keyId",
	"user_id,name":                 "name",
}

// handleError looks for well known DB errors. If the error is recognized it
// is translated into a UniqueConstraintError so that calling code can
// inspect the error.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return UniqueConstraintError{Table: pgErr.TableName, Column: constraintFields[pgErr.ConstraintName]}
		}
	}

	// sqlite reports "UNIQUE constraint failed: <table>.<column>[, <table>.<column>]"
	if rest, ok := strings.CutPrefix(err.Error(), "UNIQUE constraint failed: "); ok {
		var table string
		columns := make([]string, 0, 2)
		for _, field := range strings.Split(rest, ", ") {
			t, column, found := strings.Cut(field, ".")
			if !found {
				logging.Warnf("unhandled unique constraint error format: %q", err.Error())
				return UniqueConstraintError{}
			}
			table = t
			columns = append(columns, column)
		}
		return UniqueConstraintError{Table: table, Column: constraintFields[strings.Join(columns, ",")]}
	}

	return err
}
