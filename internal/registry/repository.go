package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrDuplicate is returned when the city (or favorite) is already present.
	ErrDuplicate = errors.New("already registered")
	// ErrNotFound is returned when the city (or favorite) is not present.
	ErrNotFound = errors.New("not registered")
)

//go:embed sql/schema.sql
var schemaSQL string

//go:embed sql/insert-city.sql
var insertCitySQL string

//go:embed sql/delete-city.sql
var deleteCitySQL string

//go:embed sql/list-cities.sql
var listCitiesSQL string

//go:embed sql/city-exists.sql
var cityExistsSQL string

//go:embed sql/insert-favorite.sql
var insertFavoriteSQL string

//go:embed sql/delete-favorite.sql
var deleteFavoriteSQL string

//go:embed sql/list-favorites.sql
var listFavoritesSQL string

// Repository persists the tracked cities and the favorite subset.
// City names are exact and case-sensitive.
type Repository interface {
	AddCity(ctx context.Context, name string) error
	RemoveCity(ctx context.Context, name string) error
	Cities(ctx context.Context) ([]string, error)
	HasCity(ctx context.Context, name string) (bool, error)

	AddFavorite(ctx context.Context, name string) error
	RemoveFavorite(ctx context.Context, name string) error
	Favorites(ctx context.Context) ([]string, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate registry: %w", err)
	}
	return nil
}

func (r *repositoryImpl) AddCity(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, insertCitySQL, name)
	if err != nil {
		return fmt.Errorf("insert city %q: %w", name, err)
	}
	return affected(res, ErrDuplicate)
}

// RemoveCity deletes the city; its favorite mark goes with it.
func (r *repositoryImpl) RemoveCity(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, deleteCitySQL, name)
	if err != nil {
		return fmt.Errorf("delete city %q: %w", name, err)
	}
	return affected(res, ErrNotFound)
}

func (r *repositoryImpl) Cities(ctx context.Context) ([]string, error) {
	return r.names(ctx, listCitiesSQL)
}

func (r *repositoryImpl) HasCity(ctx context.Context, name string) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, cityExistsSQL, name).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// AddFavorite marks a tracked city as favorite. An untracked city is ErrNotFound.
func (r *repositoryImpl) AddFavorite(ctx context.Context, name string) error {
	ok, err := r.HasCity(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("favorite %q: city %w", name, ErrNotFound)
	}

	res, err := r.db.ExecContext(ctx, insertFavoriteSQL, name)
	if err != nil {
		return fmt.Errorf("insert favorite %q: %w", name, err)
	}
	return affected(res, ErrDuplicate)
}

func (r *repositoryImpl) RemoveFavorite(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, deleteFavoriteSQL, name)
	if err != nil {
		return fmt.Errorf("delete favorite %q: %w", name, err)
	}
	return affected(res, ErrNotFound)
}

func (r *repositoryImpl) Favorites(ctx context.Context) ([]string, error) {
	return r.names(ctx, listFavoritesSQL)
}

func (r *repositoryImpl) names(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close registry rows", "error", err)
		}
	}()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func affected(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}
