package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OwnerKind distinguishes personal credentials from organization credentials.
type OwnerKind string

const (
	OwnerUser         OwnerKind = "user"
	OwnerOrganization OwnerKind = "organization"
)

// Valid reports whether k is a known owner kind.
func (k OwnerKind) Valid() bool {
	return k == OwnerUser || k == OwnerOrganization
}

// Owner is the tagged owner of a credential: exactly one user or one organization.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// UserOwner returns the owner for a personal credential.
func UserOwner(id uuid.UUID) Owner {
	return Owner{Kind: OwnerUser, ID: id}
}

// OrganizationOwner returns the owner for an organization credential.
func OrganizationOwner(id uuid.UUID) Owner {
	return Owner{Kind: OwnerOrganization, ID: id}
}

func (o Owner) String() string {
	return fmt.Sprintf("%s:%s", o.Kind, o.ID)
}

// Credential is an encrypted provider secret. EncryptedValue is opaque to the
// store.
type Credential struct {
	ID              uuid.UUID  `json:"id"`
	Owner           Owner      `json:"owner"`
	ProviderType    string     `json:"provider_type"`
	EncryptedValue  string     `json:"encrypted_value"`
	Label           string     `json:"label,omitempty"`
	IsValid         bool       `json:"is_valid"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
	UsageCount      int64      `json:"usage_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Organization roles allowed to manage organization credentials.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Profile is the read-only slice of a user profile the resolver needs.
type Profile struct {
	UserID                uuid.UUID  `json:"user_id"`
	Email                 string     `json:"email,omitempty"`
	OrganizationID        *uuid.UUID `json:"organization_id,omitempty"`
	OrganizationRole      string     `json:"organization_role,omitempty"`
	UsePersonalCredential bool       `json:"use_personal_credential"`
}
