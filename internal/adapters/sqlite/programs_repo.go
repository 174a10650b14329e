package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
)

const metaFetchedAt = "programs_fetched_at"

// ProgramsRepository est le cache de la liste des programmes.
// Chaque Save remplace entièrement le contenu précédent.
type ProgramsRepository struct {
	db *sql.DB
}

func NewProgramsRepository(db *sql.DB) *ProgramsRepository {
	return &ProgramsRepository{db: db}
}

func (r *ProgramsRepository) Load(ctx context.Context) ([]domain.Program, time.Time, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM catalog_meta WHERE key = ?`, metaFetchedAt).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, ports.ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// Horodatage illisible: on force un refresh.
		return nil, time.Time{}, ports.ErrNotFound
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, foreign_title, short_description, episodes_json
		FROM programs
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}
	defer rows.Close()

	var out []domain.Program
	for rows.Next() {
		var p domain.Program
		var episodes []byte
		if err := rows.Scan(&p.ID, &p.Title, &p.ForeignTitle, &p.ShortDescription, &episodes); err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %v", ports.ErrStorage, err)
		}
		if len(episodes) > 0 {
			if err := json.Unmarshal(episodes, &p.Episodes); err != nil {
				return nil, time.Time{}, fmt.Errorf("%w: program %s: %v", ports.ErrStorage, p.ID, err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}
	return out, fetchedAt, nil
}

func (r *ProgramsRepository) Save(ctx context.Context, programs []domain.Program, fetchedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM programs`); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO programs(id, position, title, foreign_title, short_description, episodes_json)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			foreign_title = excluded.foreign_title,
			short_description = excluded.short_description,
			episodes_json = excluded.episodes_json
	`)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}
	defer stmt.Close()

	for i, p := range programs {
		episodes := p.Episodes
		if episodes == nil {
			episodes = []domain.ProgramEpisode{}
		}
		b, err := json.Marshal(episodes)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, p.ID, i, p.Title, p.ForeignTitle, p.ShortDescription, b); err != nil {
			return fmt.Errorf("%w: program %s: %v", ports.ErrStorage, p.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO catalog_meta(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaFetchedAt, fetchedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}
	return nil
}
