package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit outcomes.
const (
	AuditOutcomeGranted = "granted"
	AuditOutcomeDenied  = "denied"
)

// AuditEvent records a single authorization decision, granted or denied.
// Events are signed so downstream collectors can detect tampering; the
// collection mechanism itself lives outside this service.
type AuditEvent struct {
	ID        uuid.UUID
	Shard     string
	Resource  string
	Role      string
	Outcome   string
	Reason    string
	CreatedAt time.Time
	Signature []byte
}
