package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"

	// SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// maxIDsPerQuery keeps IN lists well below SQLite's bound-parameter limit.
const maxIDsPerQuery = 500

const schema = `
CREATE TABLE IF NOT EXISTS movie (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	overview     TEXT NOT NULL DEFAULT '',
	genres       TEXT NOT NULL DEFAULT '[]',
	release_year INTEGER NOT NULL DEFAULT 0,
	poster_path  TEXT NOT NULL DEFAULT '',
	popularity   REAL NOT NULL DEFAULT 0,
	point_id     INTEGER,
	updated_ts   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS favorite (
	movie_id TEXT PRIMARY KEY,
	added_ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_favorite_added ON favorite (added_ts);
`

const movieColumns = "id, title, overview, genres, release_year, poster_path, popularity, point_id, updated_ts"

// Catalog is the movie metadata store on SQLite.
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ storage.Catalog       = (*Catalog)(nil)
	_ storage.CatalogWriter = (*Catalog)(nil)
)

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger for the catalog.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// Open opens or creates the catalog database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Catalog, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: catalog path is required", core.ErrConfiguration)
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	c := &Catalog{db: db}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "catalog")

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply catalog schema")
	}
	return c, nil
}

// NewMemoryCatalog creates an in-memory catalog for testing.
func NewMemoryCatalog(ctx context.Context) (*Catalog, error) {
	return Open(ctx, ":memory:")
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// FindByIDs returns the movies that exist among ids.
func (c *Catalog) FindByIDs(ctx context.Context, ids ...string) ([]*core.Movie, error) {
	var movies []*core.Movie
	for start := 0; start < len(ids); start += maxIDsPerQuery {
		chunk := ids[start:min(start+maxIDsPerQuery, len(ids))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := "SELECT " + movieColumns + " FROM movie WHERE id IN (" + placeholders(len(chunk)) + ")"
		found, err := c.queryMovies(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		movies = append(movies, found...)
	}
	return movies, nil
}

// ListMovies pages through the catalog ordered by ID.
func (c *Catalog) ListMovies(ctx context.Context, afterID string, limit int) ([]*core.Movie, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	query := "SELECT " + movieColumns + " FROM movie WHERE id > ? ORDER BY id ASC LIMIT ?"
	return c.queryMovies(ctx, query, afterID, limit)
}

// CountMovies returns the number of movies in the catalog.
func (c *Catalog) CountMovies(ctx context.Context) (int, error) {
	var count int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM movie").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}
	return count, nil
}

// FindFavorites returns every favorite, oldest first.
func (c *Catalog) FindFavorites(ctx context.Context) ([]*core.Favorite, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT movie_id, added_ts FROM favorite ORDER BY added_ts ASC, movie_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	var favorites []*core.Favorite
	for rows.Next() {
		var (
			fav     core.Favorite
			addedTs int64
		)
		if err := rows.Scan(&fav.ItemID, &addedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan favorite")
		}
		fav.AddedAt = time.UnixMicro(addedTs).UTC()
		favorites = append(favorites, &fav)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return favorites, nil
}

// UpsertMovies inserts or replaces movies by ID in a single transaction.
func (c *Catalog) UpsertMovies(ctx context.Context, movies ...*core.Movie) error {
	if len(movies) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt := `INSERT INTO movie (` + movieColumns + `)
		VALUES (` + placeholders(9) + `)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			overview = excluded.overview,
			genres = excluded.genres,
			release_year = excluded.release_year,
			poster_path = excluded.poster_path,
			popularity = excluded.popularity,
			point_id = excluded.point_id,
			updated_ts = excluded.updated_ts`

	for _, m := range movies {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("%w: movie id is required", core.ErrInvalidInput)
		}
		genres, err := json.Marshal(nonNil(m.Genres))
		if err != nil {
			return errors.Wrap(err, "failed to marshal genres")
		}
		if m.UpdatedAt.IsZero() {
			m.UpdatedAt = time.Now().UTC()
		}
		var pointID sql.NullInt64
		if m.PointID != 0 {
			pointID = sql.NullInt64{Int64: int64(m.PointID), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, stmt,
			m.ID, m.Title, m.Overview, string(genres), m.ReleaseYear,
			m.PosterPath, m.Popularity, pointID, m.UpdatedAt.UnixMicro(),
		); err != nil {
			return fmt.Errorf("failed to upsert movie %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// AddFavorites records favorites. Existing entries keep their AddedAt.
func (c *Catalog) AddFavorites(ctx context.Context, favorites ...*core.Favorite) error {
	if len(favorites) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, f := range favorites {
		if strings.TrimSpace(f.ItemID) == "" {
			return fmt.Errorf("%w: favorite item id is required", core.ErrInvalidInput)
		}
		addedAt := f.AddedAt
		if addedAt.IsZero() {
			addedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO favorite (movie_id, added_ts) VALUES (?, ?) ON CONFLICT (movie_id) DO NOTHING",
			f.ItemID, addedAt.UnixMicro(),
		); err != nil {
			return fmt.Errorf("failed to add favorite %s: %w", f.ItemID, err)
		}
	}
	return tx.Commit()
}

func (c *Catalog) queryMovies(ctx context.Context, query string, args ...any) ([]*core.Movie, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movies: %w", err)
	}
	defer rows.Close()

	var movies []*core.Movie
	for rows.Next() {
		var (
			m         core.Movie
			genres    string
			pointID   sql.NullInt64
			updatedTs int64
		)
		if err := rows.Scan(
			&m.ID, &m.Title, &m.Overview, &genres, &m.ReleaseYear,
			&m.PosterPath, &m.Popularity, &pointID, &updatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan movie")
		}
		if err := json.Unmarshal([]byte(genres), &m.Genres); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal genres of movie %s", m.ID)
		}
		if pointID.Valid {
			m.PointID = core.PointID(uint64(pointID.Int64))
		}
		m.UpdatedAt = time.UnixMicro(updatedTs).UTC()
		movies = append(movies, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movies, nil
}

// placeholders returns n placeholders for SQLite
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = "?"
	}
	return strings.Join(list, ", ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
