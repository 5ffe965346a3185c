package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okoth/userhub/internal/domain/adminunit"
)

const foreignKeyViolation = "23503"

const adminUnitColumns = `id, name, type, parent_id, metadata, created_at, updated_at`

type AdminUnitsRepo struct {
	pool *pgxpool.Pool
}

func NewAdminUnitsRepo(pool *pgxpool.Pool) *AdminUnitsRepo {
	return &AdminUnitsRepo{pool: pool}
}

func scanAdminUnit(row pgx.Row) (adminunit.AdminUnit, error) {
	var u adminunit.AdminUnit

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Type,
		&u.ParentID,
		&u.Metadata,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return adminunit.AdminUnit{}, adminunit.ErrNotFound
		}

		return adminunit.AdminUnit{}, err
	}
	return u, nil
}

func (r *AdminUnitsRepo) Create(ctx context.Context, u adminunit.AdminUnit) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO admin_units (`+adminUnitColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Name, u.Type, u.ParentID, u.Metadata, u.CreatedAt, u.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return adminunit.ErrNameTaken
		}
		return err
	}

	return nil
}

func (r *AdminUnitsRepo) GetByID(ctx context.Context, id string) (adminunit.AdminUnit, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+adminUnitColumns+` FROM admin_units WHERE id = $1`, id)

	return scanAdminUnit(row)
}

// List returns every unit. The hierarchy is a small, slow-moving data set;
// pagination would be ceremony here.
func (r *AdminUnitsRepo) List(ctx context.Context) ([]adminunit.AdminUnit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+adminUnitColumns+`
		 FROM admin_units
		 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAdminUnits(rows)
}

func (r *AdminUnitsRepo) ListChildren(ctx context.Context, parentID string) ([]adminunit.AdminUnit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+adminUnitColumns+`
		 FROM admin_units
		 WHERE parent_id = $1
		 ORDER BY created_at, id`,
		parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAdminUnits(rows)
}

func collectAdminUnits(rows pgx.Rows) ([]adminunit.AdminUnit, error) {
	units := make([]adminunit.AdminUnit, 0)

	for rows.Next() {
		u, err := scanAdminUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}

	return units, rows.Err()
}

// Update applies a partial patch in a single statement. A patch that sets the
// parent writes the column even when the new value is NULL, so a link can be
// cleared.
func (r *AdminUnitsRepo) Update(ctx context.Context, id string, p adminunit.Patch) (adminunit.AdminUnit, error) {
	sets := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)

	add := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}

	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.SetParent {
		add("parent_id", p.ParentID)
	}
	if p.Metadata != nil {
		add("metadata", p.Metadata)
	}

	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	add("updated_at", time.Now().UTC())

	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE admin_units SET %s WHERE id = $%d RETURNING `+adminUnitColumns,
		strings.Join(sets, ", "), len(args),
	)

	u, err := scanAdminUnit(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return adminunit.AdminUnit{}, adminunit.ErrNameTaken
		}
		return adminunit.AdminUnit{}, err
	}

	return u, nil
}

// Delete is a hard delete. The parent_id foreign key is ON DELETE RESTRICT,
// so a unit with children surfaces as ErrHasChildren rather than orphaning
// them.
func (r *AdminUnitsRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM admin_units WHERE id = $1`, id)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return adminunit.ErrHasChildren
		}
		return err
	}

	if tag.RowsAffected() == 0 {
		return adminunit.ErrNotFound
	}

	return nil
}
