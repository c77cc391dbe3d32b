// Package models defines the persistent data model of the auth core and the
// SQL round-tripping for its enum types. Each enum implements sql.Scanner
// and driver.Valuer by hand against a fixed value list; the database side
// declares matching Postgres ENUM types.
package models

import (
	"database/sql/driver"
	"fmt"
)

// Language is a user's interface language.
type Language string

const (
	LanguageEnUS Language = "en-US"
	LanguageFiFI Language = "fi-FI"
)

// Languages lists every valid Language value, in migration order.
func Languages() []Language {
	return []Language{LanguageEnUS, LanguageFiFI}
}

func (l *Language) Scan(src any) error {
	s, err := scanEnumString(src)
	if err != nil {
		return fmt.Errorf("scanning language: %w", err)
	}
	for _, v := range Languages() {
		if s == string(v) {
			*l = v
			return nil
		}
	}
	return fmt.Errorf("unknown language %q", s)
}

func (l Language) Value() (driver.Value, error) {
	return string(l), nil
}

// PasswordChangeReason marks an account whose password must be changed
// before most authenticated operations are allowed again.
type PasswordChangeReason string

// PasswordChangeReasonSessionCompromise is set when hijack detection
// revokes an account's credentials.
const PasswordChangeReasonSessionCompromise PasswordChangeReason = "session_compromise"

// PasswordChangeReasons lists every valid PasswordChangeReason value.
func PasswordChangeReasons() []PasswordChangeReason {
	return []PasswordChangeReason{PasswordChangeReasonSessionCompromise}
}

func (r *PasswordChangeReason) Scan(src any) error {
	s, err := scanEnumString(src)
	if err != nil {
		return fmt.Errorf("scanning password change reason: %w", err)
	}
	for _, v := range PasswordChangeReasons() {
		if s == string(v) {
			*r = v
			return nil
		}
	}
	return fmt.Errorf("unknown password change reason %q", s)
}

func (r PasswordChangeReason) Value() (driver.Value, error) {
	return string(r), nil
}

// Permission grants a user an operation on other users' resources.
type Permission string

const (
	PermissionViewUser         Permission = "view_user"
	PermissionEditUser         Permission = "edit_user"
	PermissionDeleteUser       Permission = "delete_user"
	PermissionIgnoreRateLimits Permission = "ignore_rate_limits"
)

// Permissions lists every valid Permission value.
func Permissions() []Permission {
	return []Permission{
		PermissionViewUser,
		PermissionEditUser,
		PermissionDeleteUser,
		PermissionIgnoreRateLimits,
	}
}

func (p *Permission) Scan(src any) error {
	s, err := scanEnumString(src)
	if err != nil {
		return fmt.Errorf("scanning permission: %w", err)
	}
	for _, v := range Permissions() {
		if s == string(v) {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("unknown permission %q", s)
}

func (p Permission) Value() (driver.Value, error) {
	return string(p), nil
}

func scanEnumString(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("unsupported source type %T", src)
}
