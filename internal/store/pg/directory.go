package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"covena.org/internal/directory"
	"covena.org/internal/ids"
)

// --- associations ---

func (s *Store) CreateAssociation(ctx context.Context, a directory.Association) (directory.Association, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into associations (id, name, abbreviation, street, city, state, zip, contact_email, contact_phone)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning id, name, coalesce(abbreviation,''), coalesce(street,''), coalesce(city,''),
		          coalesce(state,''), coalesce(zip,''), coalesce(contact_email,''), coalesce(contact_phone,''),
		          deleted, created_at, updated_at
	`, ids.New(), a.Name, nullIfEmpty(a.Abbreviation), nullIfEmpty(a.Street), nullIfEmpty(a.City),
		nullIfEmpty(a.State), nullIfEmpty(a.Zip), nullIfEmpty(a.ContactEmail), nullIfEmpty(a.ContactPhone))
	out, err := scanAssociation(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return directory.Association{}, directory.ErrConflict
		}
		return directory.Association{}, err
	}
	return out, nil
}

const associationColumns = `
	id, name, coalesce(abbreviation,''), coalesce(street,''), coalesce(city,''),
	coalesce(state,''), coalesce(zip,''), coalesce(contact_email,''), coalesce(contact_phone,''),
	deleted, created_at, updated_at`

func (s *Store) ListAssociations(ctx context.Context) ([]directory.Association, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+associationColumns+`
		from associations
		where not deleted
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.Association
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetAssociation(ctx context.Context, id string) (directory.Association, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+associationColumns+`
		from associations
		where id = $1 and not deleted
	`, id)
	a, err := scanAssociation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Association{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Association{}, err
	}
	return a, nil
}

func (s *Store) UpdateAssociation(ctx context.Context, id string, upd directory.AssociationUpdate) (directory.Association, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	set := func(column string, value *string) {
		if value == nil {
			return
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, nullIfEmpty(*value))
		idx++
	}
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	set("abbreviation", upd.Abbreviation)
	set("street", upd.Street)
	set("city", upd.City)
	set("state", upd.State)
	set("zip", upd.Zip)
	set("contact_email", upd.ContactEmail)
	set("contact_phone", upd.ContactPhone)

	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update associations set %s where id = $%d and not deleted`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return directory.Association{}, directory.ErrConflict
			}
			return directory.Association{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return directory.Association{}, err
		}
		if aff == 0 {
			return directory.Association{}, directory.ErrNotFound
		}
	}
	return s.GetAssociation(ctx, id)
}

func (s *Store) SoftDeleteAssociation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update associations set deleted = true, updated_at = now()
		where id = $1 and not deleted
	`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssociation(row rowScanner) (directory.Association, error) {
	var a directory.Association
	err := row.Scan(&a.ID, &a.Name, &a.Abbreviation, &a.Street, &a.City,
		&a.State, &a.Zip, &a.ContactEmail, &a.ContactPhone,
		&a.Deleted, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// --- profiles ---

func (s *Store) CreateProfile(ctx context.Context, p directory.Profile) (directory.Profile, error) {
	var out directory.Profile
	row := s.db.QueryRowContext(ctx, `
		insert into profiles (id, identity_id, home_association_id, first_name, last_name)
		values ($1, $2, $3, $4, $5)
		returning id, identity_id, home_association_id, first_name, last_name, created_at
	`, ids.New(), p.IdentityID, p.HomeAssociationID, p.FirstName, p.LastName)
	if err := row.Scan(&out.ID, &out.IdentityID, &out.HomeAssociationID, &out.FirstName, &out.LastName, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return directory.Profile{}, directory.ErrConflict
			case pgErrForeignKeyViolation:
				return directory.Profile{}, directory.ErrNotFound
			}
		}
		return directory.Profile{}, err
	}
	return out, nil
}

func (s *Store) GetProfileByIdentity(ctx context.Context, identityID string) (directory.Profile, error) {
	var p directory.Profile
	err := s.db.QueryRowContext(ctx, `
		select id, identity_id, home_association_id, first_name, last_name, created_at
		from profiles
		where identity_id = $1
	`, identityID).Scan(&p.ID, &p.IdentityID, &p.HomeAssociationID, &p.FirstName, &p.LastName, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Profile{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Profile{}, err
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, profileID string, upd directory.ProfileUpdate) (directory.Profile, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.FirstName != nil {
		sets = append(sets, fmt.Sprintf("first_name = $%d", idx))
		args = append(args, *upd.FirstName)
		idx++
	}
	if upd.LastName != nil {
		sets = append(sets, fmt.Sprintf("last_name = $%d", idx))
		args = append(args, *upd.LastName)
		idx++
	}
	if upd.HomeAssociationID != nil {
		sets = append(sets, fmt.Sprintf("home_association_id = $%d", idx))
		args = append(args, *upd.HomeAssociationID)
		idx++
	}
	if len(sets) > 0 {
		query := fmt.Sprintf(`update profiles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, profileID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return directory.Profile{}, directory.ErrNotFound
			}
			return directory.Profile{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return directory.Profile{}, err
		}
		if aff == 0 {
			return directory.Profile{}, directory.ErrNotFound
		}
	}
	var p directory.Profile
	err := s.db.QueryRowContext(ctx, `
		select id, identity_id, home_association_id, first_name, last_name, created_at
		from profiles
		where id = $1
	`, profileID).Scan(&p.ID, &p.IdentityID, &p.HomeAssociationID, &p.FirstName, &p.LastName, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Profile{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Profile{}, err
	}
	return p, nil
}

func (s *Store) DeleteProfileByIdentity(ctx context.Context, identityID string) error {
	res, err := s.db.ExecContext(ctx, `delete from profiles where identity_id = $1`, identityID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

// --- memberships ---

func (s *Store) CreateMembership(ctx context.Context, identityID, associationID string) (directory.Membership, error) {
	var m directory.Membership
	row := s.db.QueryRowContext(ctx, `
		insert into memberships (id, identity_id, association_id, active)
		values ($1, $2, $3, true)
		returning id, identity_id, association_id, active, joined_at
	`, ids.New(), identityID, associationID)
	if err := row.Scan(&m.ID, &m.IdentityID, &m.AssociationID, &m.Active, &m.JoinedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return directory.Membership{}, directory.ErrConflict
			case pgErrForeignKeyViolation:
				return directory.Membership{}, directory.ErrNotFound
			}
		}
		return directory.Membership{}, err
	}
	return m, nil
}

func (s *Store) ListMemberships(ctx context.Context, identityID string) ([]directory.MembershipEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select m.id, m.identity_id, m.association_id, m.active, m.joined_at,
		       a.id, a.name, coalesce(a.abbreviation,''), coalesce(a.street,''), coalesce(a.city,''),
		       coalesce(a.state,''), coalesce(a.zip,''), coalesce(a.contact_email,''), coalesce(a.contact_phone,''),
		       a.deleted, a.created_at, a.updated_at
		from memberships m
		join associations a on a.id = m.association_id
		where m.identity_id = $1 and m.active and not a.deleted
		order by m.joined_at, m.id
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.MembershipEntry
	for rows.Next() {
		var entry directory.MembershipEntry
		m := &entry.Membership
		a := &entry.Association
		if err := rows.Scan(&m.ID, &m.IdentityID, &m.AssociationID, &m.Active, &m.JoinedAt,
			&a.ID, &a.Name, &a.Abbreviation, &a.Street, &a.City,
			&a.State, &a.Zip, &a.ContactEmail, &a.ContactPhone,
			&a.Deleted, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeactivateMembership(ctx context.Context, identityID, associationID string) error {
	res, err := s.db.ExecContext(ctx, `
		update memberships set active = false
		where identity_id = $1 and association_id = $2 and active
	`, identityID, associationID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMembershipsByIdentity(ctx context.Context, identityID string) error {
	_, err := s.db.ExecContext(ctx, `delete from memberships where identity_id = $1`, identityID)
	return err
}

// --- roles ---

const roleColumns = `id, name, coalesce(description,''), permissions, system, coalesce(association_id,''), created_at, updated_at`

func (s *Store) CreateRole(ctx context.Context, role directory.Role) (directory.Role, error) {
	perms, err := json.Marshal(permsOrEmpty(role.Permissions))
	if err != nil {
		return directory.Role{}, fmt.Errorf("marshal permissions: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, permissions, system, association_id)
		values ($1, $2, $3, $4, $5, $6)
		returning `+roleColumns+`
	`, ids.New(), role.Name, nullIfEmpty(role.Description), perms, role.System, nullIfEmpty(role.AssociationID))
	out, err := scanRole(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return directory.Role{}, directory.ErrConflict
			case pgErrForeignKeyViolation:
				return directory.Role{}, directory.ErrNotFound
			}
		}
		return directory.Role{}, err
	}
	return out, nil
}

func (s *Store) ListRoles(ctx context.Context, associationID string) ([]directory.Role, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if associationID == "" {
		rows, err = s.db.QueryContext(ctx, `
			select `+roleColumns+`
			from roles
			order by name
		`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			select `+roleColumns+`
			from roles
			where system or association_id = $1
			order by name
		`, associationID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (directory.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles
		where id = $1
	`, roleID)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Role{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Role{}, err
	}
	return role, nil
}

func (s *Store) UpdateRole(ctx context.Context, roleID string, upd directory.RoleUpdate) (directory.Role, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		if *upd.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, roleID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return directory.Role{}, directory.ErrConflict
			}
			return directory.Role{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return directory.Role{}, err
		}
		if aff == 0 {
			return directory.Role{}, directory.ErrNotFound
		}
	}
	return s.GetRole(ctx, roleID)
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissions []string) error {
	perms, err := json.Marshal(permsOrEmpty(permissions))
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update roles set permissions = $2, updated_at = now()
		where id = $1
	`, roleID, perms)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func scanRole(row rowScanner) (directory.Role, error) {
	var (
		role directory.Role
		raw  []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &raw, &role.System, &role.AssociationID, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return directory.Role{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &role.Permissions); err != nil {
			return directory.Role{}, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return role, nil
}

func permsOrEmpty(permissions []string) []string {
	if permissions == nil {
		return []string{}
	}
	return permissions
}

// --- role assignments ---

func (s *Store) AssignRole(ctx context.Context, identityID, roleID, assignedBy string) (directory.RoleAssignment, error) {
	var a directory.RoleAssignment
	row := s.db.QueryRowContext(ctx, `
		insert into role_assignments (id, identity_id, role_id, assigned_by)
		values ($1, $2, $3, $4)
		returning id, identity_id, role_id, coalesce(assigned_by,''), assigned_at
	`, ids.New(), identityID, roleID, nullIfEmpty(assignedBy))
	if err := row.Scan(&a.ID, &a.IdentityID, &a.RoleID, &a.AssignedBy, &a.AssignedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return directory.RoleAssignment{}, directory.ErrConflict
			case pgErrForeignKeyViolation:
				return directory.RoleAssignment{}, directory.ErrNotFound
			}
		}
		return directory.RoleAssignment{}, err
	}
	return a, nil
}

func (s *Store) RemoveRoleAssignment(ctx context.Context, identityID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from role_assignments
		where identity_id = $1 and role_id = $2
	`, identityID, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func (s *Store) ListAssignedRoles(ctx context.Context, identityID string) ([]directory.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, coalesce(r.description,''), r.permissions, r.system, coalesce(r.association_id,''), r.created_at, r.updated_at
		from role_assignments ra
		join roles r on r.id = ra.role_id
		where ra.identity_id = $1
		order by r.id
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteAssignmentsByIdentity(ctx context.Context, identityID string) error {
	_, err := s.db.ExecContext(ctx, `delete from role_assignments where identity_id = $1`, identityID)
	return err
}
