package services

import (
	"github.com/google/uuid"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/store"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID                uuid.UUID
	Email                 string
	OrganizationID        *uuid.UUID
	OrganizationRole      string
	UsePersonalCredential bool
}

// PrincipalFromProfile builds a principal for userID. A nil profile yields a
// user with no organization who does not use a personal credential.
func PrincipalFromProfile(userID uuid.UUID, profile *store.Profile) Principal {
	p := Principal{UserID: userID}
	if profile != nil {
		p.Email = profile.Email
		p.OrganizationID = profile.OrganizationID
		p.OrganizationRole = profile.OrganizationRole
		p.UsePersonalCredential = profile.UsePersonalCredential
	}
	return p
}

// String identifies the principal in logs and anomaly buckets.
func (p Principal) String() string {
	return p.UserID.String()
}

// HasOrganization reports whether the principal belongs to an organization.
func (p Principal) HasOrganization() bool {
	return p.OrganizationID != nil && *p.OrganizationID != uuid.Nil
}

// OwnerFor maps an owner ID from a request path to the owner it denotes for
// this principal. ok is false when the ID belongs to neither the principal
// nor its organization.
func (p Principal) OwnerFor(id uuid.UUID) (store.Owner, bool) {
	switch {
	case id == p.UserID:
		return store.UserOwner(id), true
	case p.HasOrganization() && id == *p.OrganizationID:
		return store.OrganizationOwner(id), true
	default:
		return store.Owner{}, false
	}
}

// AuthorizeOwner checks that the principal may act on owner's credentials.
// Mutations of organization credentials need the admin or owner role.
func (p Principal) AuthorizeOwner(owner store.Owner, mutate bool) error {
	switch owner.Kind {
	case store.OwnerUser:
		if owner.ID != p.UserID {
			return apperror.Forbidden(apperror.CodeCrossTenant, "Access to another tenant's credentials is not allowed")
		}
		return nil
	case store.OwnerOrganization:
		if !p.HasOrganization() || owner.ID != *p.OrganizationID {
			return apperror.Forbidden(apperror.CodeCrossTenant, "Access to another tenant's credentials is not allowed")
		}
		if mutate && p.OrganizationRole != store.RoleAdmin && p.OrganizationRole != store.RoleOwner {
			return apperror.Forbidden(apperror.CodeForbidden, "Organization admin role required")
		}
		return nil
	default:
		return apperror.Validation(apperror.CodeInvalidInput, "Invalid owner context", map[string]string{
			"ownerContext.type": "must be user or organization",
		})
	}
}
