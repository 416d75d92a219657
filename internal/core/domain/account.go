package domain

import (
	"strconv"
	"time"
)

// Account holds a user's prepaid micro-credit balance.
// Available funds are BalanceMicro minus ReservedMicro and never go negative.
type Account struct {
	ID            int64     `json:"id"`
	Subject       *string   `json:"subject,omitempty"` // External subject identifier, optional
	BalanceMicro  int64     `json:"balance_micro"`
	ReservedMicro int64     `json:"reserved_micro"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AvailableMicro returns the spendable part of the balance.
func (a *Account) AvailableMicro() int64 {
	return a.BalanceMicro - a.ReservedMicro
}

// Ref identifies this account by its numeric id.
func (a *Account) Ref() AccountRef {
	return AccountRef{ID: a.ID}
}

// ResolutionStrategy decides how an AccountRef maps to an account row.
type ResolutionStrategy string

const (
	ResolveByID      ResolutionStrategy = "id"
	ResolveBySubject ResolutionStrategy = "subject"
)

// AccountRef identifies an account either by numeric id or by external subject.
// Exactly one of the two is set once the ref has been built by an AccountResolver.
type AccountRef struct {
	ID      int64
	Subject string
}

// IsZero reports whether the ref points nowhere.
func (r AccountRef) IsZero() bool {
	return r.ID == 0 && r.Subject == ""
}

func (r AccountRef) String() string {
	if r.Subject != "" {
		return "subject:" + r.Subject
	}
	return "id:" + strconv.FormatInt(r.ID, 10)
}
