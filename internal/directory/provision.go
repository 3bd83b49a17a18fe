package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"covena.org/internal/audit"
	"covena.org/internal/auth"
)

// Provisioner performs the privileged user lifecycle operations: creating
// an identity together with its profile and first membership, and the
// cascading removal of everything an identity owns.
type Provisioner struct {
	identities auth.IdentityStore
	refresh    auth.RefreshTokenStore
	store      Store
}

// NewProvisioner constructs Provisioner.
func NewProvisioner(identities auth.IdentityStore, refresh auth.RefreshTokenStore, store Store) (*Provisioner, error) {
	if identities == nil || refresh == nil || store == nil {
		return nil, fmt.Errorf("%w: provisioner requires identity, refresh, and directory stores", ErrInvalidInput)
	}
	return &Provisioner{identities: identities, refresh: refresh, store: store}, nil
}

// CreateUserInput describes a full user to provision.
type CreateUserInput struct {
	Email         string
	Password      string
	FirstName     string
	LastName      string
	AssociationID string
}

// CreateUserResult is the assembled outcome of provisioning.
type CreateUserResult struct {
	Identity   auth.Identity `json:"identity"`
	Profile    Profile       `json:"profile"`
	Membership Membership    `json:"membership"`
}

// CreateUserWithProfile creates identity, profile, and membership as one
// logical operation. If the profile or membership step fails, the created
// identity is deleted again so no orphaned credential survives.
func (p *Provisioner) CreateUserWithProfile(ctx context.Context, in CreateUserInput) (CreateUserResult, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.AssociationID = strings.TrimSpace(in.AssociationID)
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return CreateUserResult{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(strings.TrimSpace(in.Password)) < 8 {
		return CreateUserResult{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if in.FirstName == "" || in.LastName == "" {
		return CreateUserResult{}, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	if in.AssociationID == "" {
		return CreateUserResult{}, fmt.Errorf("%w: association_id is required", ErrInvalidInput)
	}
	if _, err := p.store.GetAssociation(ctx, in.AssociationID); err != nil {
		return CreateUserResult{}, err
	}

	hash, err := auth.HashPassword(strings.TrimSpace(in.Password))
	if err != nil {
		return CreateUserResult{}, err
	}
	identity, err := p.identities.CreateIdentity(ctx, in.Email, hash, auth.IdentityStatusActive)
	if err != nil {
		return CreateUserResult{}, err
	}

	profile, err := p.store.CreateProfile(ctx, Profile{
		IdentityID:        identity.ID,
		HomeAssociationID: in.AssociationID,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
	})
	if err != nil {
		p.compensate(ctx, identity.ID, "profile", err)
		return CreateUserResult{}, err
	}

	membership, err := p.store.CreateMembership(ctx, identity.ID, in.AssociationID)
	if err != nil {
		_ = p.store.DeleteProfileByIdentity(ctx, identity.ID)
		p.compensate(ctx, identity.ID, "membership", err)
		return CreateUserResult{}, err
	}

	_ = audit.LogEvent(ctx, "directory.user.provision", map[string]any{
		"identity_id":    identity.ID,
		"association_id": in.AssociationID,
	})
	return CreateUserResult{Identity: identity, Profile: profile, Membership: membership}, nil
}

// DeleteUser removes everything belonging to the identity: role
// assignments, memberships, profile, refresh tokens, then the identity
// itself.
func (p *Provisioner) DeleteUser(ctx context.Context, identityID string) error {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	if _, err := p.identities.GetIdentity(ctx, identityID); err != nil {
		return err
	}
	if err := p.store.DeleteAssignmentsByIdentity(ctx, identityID); err != nil {
		return err
	}
	if err := p.store.DeleteMembershipsByIdentity(ctx, identityID); err != nil {
		return err
	}
	if err := p.store.DeleteProfileByIdentity(ctx, identityID); err != nil && !isNotFound(err) {
		return err
	}
	if err := p.refresh.RevokeRefreshTokensByIdentity(ctx, identityID); err != nil {
		return err
	}
	if err := p.identities.DeleteIdentity(ctx, identityID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "directory.user.delete", map[string]any{
		"identity_id": identityID,
	})
	return nil
}

func (p *Provisioner) compensate(ctx context.Context, identityID, step string, cause error) {
	if err := p.identities.DeleteIdentity(ctx, identityID); err != nil {
		_ = audit.LogEvent(ctx, "directory.user.provision.orphan", map[string]any{
			"identity_id": identityID,
			"failed_step": step,
			"cause":       cause.Error(),
			"cleanup":     err.Error(),
		})
		return
	}
	_ = audit.LogEvent(ctx, "directory.user.provision.rollback", map[string]any{
		"identity_id": identityID,
		"failed_step": step,
		"cause":       cause.Error(),
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, auth.ErrNotFound)
}
