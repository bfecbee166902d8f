package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

type ReservationStatus string

const (
	StatusPending       ReservationStatus = "pending"
	StatusApproved      ReservationStatus = "approved"
	StatusRejected      ReservationStatus = "rejected"
	StatusReturnPending ReservationStatus = "return_pending"
	StatusReturned      ReservationStatus = "returned"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusReturnPending, StatusReturned:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusReturned:
		return true
	case StatusPending, StatusApproved, StatusReturnPending:
		return false
	}
	return false
}

type Role string

const (
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
)

// Roles is stored as a comma separated column.
type Roles []Role

func (r Roles) Has(role Role) bool {
	for _, have := range r {
		if have == role {
			return true
		}
	}
	return false
}

func (r Roles) With(role Role) Roles {
	if r.Has(role) {
		return r
	}
	out := make(Roles, 0, len(r)+1)
	out = append(out, r...)
	return append(out, role)
}

func (r Roles) Without(role Role) Roles {
	out := make(Roles, 0, len(r))
	for _, have := range r {
		if have != role {
			out = append(out, have)
		}
	}
	return out
}

func (r Roles) Value() (driver.Value, error) {
	parts := make([]string, len(r))
	for i, role := range r {
		parts[i] = string(role)
	}
	return strings.Join(parts, ","), nil
}

func (r *Roles) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("roles: unsupported column type %T", src)
	}
	*r = nil
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*r = append(*r, Role(part))
		}
	}
	return nil
}
