package types

import (
	"errors"
	"time"
)

var ErrMissingOrgID = errors.New("envelope requires an organization id")

// Tenant scopes a record to an organization and, optionally, the user that
// acted on it. UserID is empty for system generated records.
type Tenant struct {
	OrgID  string `bson:"orgId" json:"org_id"`
	UserID string `bson:"userId,omitempty" json:"user_id,omitempty"`
}

// Audit carries record lifecycle timestamps. CreatedAt is set once by
// NewEnvelope and never changes afterwards.
type Audit struct {
	CreatedAt time.Time  `bson:"createdAt" json:"created_at"`
	UpdatedAt *time.Time `bson:"updatedAt" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bson:"deletedAt" json:"deleted_at,omitempty"`
}

// Envelope is the tenant and audit metadata embedded in every persisted
// trading record.
type Envelope struct {
	Tenant Tenant `bson:"tenant" json:"tenant"`
	Audit  Audit  `bson:"audit" json:"audit"`
}

// NewEnvelope builds the envelope for a new record. Timestamps are stored in
// UTC with millisecond precision, the resolution of the document store.
func NewEnvelope(orgID, userID string, now time.Time) (Envelope, error) {
	if orgID == "" {
		return Envelope{}, ErrMissingOrgID
	}
	return Envelope{
		Tenant: Tenant{OrgID: orgID, UserID: userID},
		Audit:  Audit{CreatedAt: StoreTime(now)},
	}, nil
}

// Touch stamps UpdatedAt. CreatedAt is left alone.
func (e *Envelope) Touch(now time.Time) {
	t := StoreTime(now)
	e.Audit.UpdatedAt = &t
}

// MarkDeleted soft deletes the record.
func (e *Envelope) MarkDeleted(now time.Time) {
	t := StoreTime(now)
	e.Audit.UpdatedAt = &t
	e.Audit.DeletedAt = &t
}

// IsDeleted reports whether the record has been soft deleted.
func (e Envelope) IsDeleted() bool {
	return e.Audit.DeletedAt != nil
}

// OwnedBy reports whether the record belongs to the given org and user.
func (e Envelope) OwnedBy(orgID, userID string) bool {
	return e.Tenant.OrgID == orgID && e.Tenant.UserID == userID
}

// StoreTime normalizes a timestamp the way the document store persists it.
func StoreTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
