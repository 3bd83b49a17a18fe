package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"covena.org/internal/ids"
	"covena.org/internal/violation"
)

const violationColumns = `
	id, association_id, reporter_profile_id, category, title, coalesce(description,''),
	status, coalesce(resolved_by,''), resolved_at, created_at, updated_at`

func (s *Store) CreateViolation(ctx context.Context, v violation.Violation) (violation.Violation, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into violations (id, association_id, reporter_profile_id, category, title, description, status)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+violationColumns+`
	`, ids.New(), v.AssociationID, v.ReporterProfileID, v.Category, v.Title, nullIfEmpty(v.Description), v.Status)
	out, err := scanViolation(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return violation.Violation{}, violation.ErrNotFound
		}
		return violation.Violation{}, err
	}
	return out, nil
}

func (s *Store) GetViolation(ctx context.Context, associationID, id string) (violation.Violation, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+violationColumns+`
		from violations
		where association_id = $1 and id = $2
	`, associationID, id)
	v, err := scanViolation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return violation.Violation{}, violation.ErrNotFound
	}
	if err != nil {
		return violation.Violation{}, err
	}
	return v, nil
}

func (s *Store) ListViolations(ctx context.Context, associationID string, filter violation.ListFilter) ([]violation.Violation, error) {
	var (
		conds = []string{"association_id = $1"}
		args  = []any{associationID}
		idx   = 2
	)
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	if filter.Category != "" {
		conds = append(conds, fmt.Sprintf("category = $%d", idx))
		args = append(args, filter.Category)
		idx++
	}
	query := fmt.Sprintf(`
		select %s
		from violations
		where %s
		order by created_at desc, id desc
		limit $%d offset $%d
	`, violationColumns, strings.Join(conds, " and "), idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []violation.Violation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateViolation(ctx context.Context, associationID, id string, upd violation.Update) (violation.Violation, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Category != nil {
		sets = append(sets, fmt.Sprintf("category = $%d", idx))
		args = append(args, *upd.Category)
		idx++
	}
	if upd.Title != nil {
		sets = append(sets, fmt.Sprintf("title = $%d", idx))
		args = append(args, *upd.Title)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update violations set %s where association_id = $%d and id = $%d`,
			strings.Join(sets, ", "), idx, idx+1)
		args = append(args, associationID, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return violation.Violation{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return violation.Violation{}, err
		}
		if aff == 0 {
			return violation.Violation{}, violation.ErrNotFound
		}
	}
	return s.GetViolation(ctx, associationID, id)
}

func (s *Store) SetViolationStatus(ctx context.Context, associationID, id, status, resolvedBy string, resolvedAt *time.Time) (violation.Violation, error) {
	res, err := s.db.ExecContext(ctx, `
		update violations
		set status = $3, resolved_by = $4, resolved_at = $5, updated_at = now()
		where association_id = $1 and id = $2
	`, associationID, id, status, nullIfEmpty(resolvedBy), resolvedAt)
	if err != nil {
		return violation.Violation{}, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return violation.Violation{}, err
	}
	if aff == 0 {
		return violation.Violation{}, violation.ErrNotFound
	}
	return s.GetViolation(ctx, associationID, id)
}

func scanViolation(row rowScanner) (violation.Violation, error) {
	var (
		v          violation.Violation
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&v.ID, &v.AssociationID, &v.ReporterProfileID, &v.Category, &v.Title, &v.Description,
		&v.Status, &v.ResolvedBy, &resolvedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return violation.Violation{}, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		v.ResolvedAt = &t
	}
	return v, nil
}
