package models

import (
	"testing"
	"time"
)

func TestLanguage_Scan(t *testing.T) {
	var l Language
	if err := l.Scan("fi-FI"); err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if l != LanguageFiFI {
		t.Errorf("expected %v, got %v", LanguageFiFI, l)
	}

	if err := l.Scan([]byte("en-US")); err != nil {
		t.Fatalf("Scan from bytes error: %v", err)
	}
	if l != LanguageEnUS {
		t.Errorf("expected %v, got %v", LanguageEnUS, l)
	}

	if err := l.Scan("xx-XX"); err == nil {
		t.Errorf("expected error for unknown language")
	}
	if err := l.Scan(42); err == nil {
		t.Errorf("expected error for unsupported source type")
	}
}

func TestPasswordChangeReason_Scan(t *testing.T) {
	var r PasswordChangeReason
	if err := r.Scan("session_compromise"); err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if r != PasswordChangeReasonSessionCompromise {
		t.Errorf("unexpected reason %v", r)
	}
	if err := r.Scan("bad_hair_day"); err == nil {
		t.Errorf("expected error for unknown reason")
	}
}

func TestPermission_Scan(t *testing.T) {
	var p Permission
	if err := p.Scan("ignore_rate_limits"); err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if p != PermissionIgnoreRateLimits {
		t.Errorf("unexpected permission %v", p)
	}
	if err := p.Scan("rule_the_world"); err == nil {
		t.Errorf("expected error for unknown permission")
	}
}

func TestEnum_Value(t *testing.T) {
	v, err := LanguageEnUS.Value()
	if err != nil {
		t.Fatalf("Value error: %v", err)
	}
	if v != "en-US" {
		t.Errorf("expected en-US, got %v", v)
	}
}

func TestUser_TOTPEnabled(t *testing.T) {
	u := User{}
	if u.TOTPEnabled() {
		t.Errorf("expected TOTP disabled without key")
	}
	u.TOTPKey = []byte("envelope")
	if !u.TOTPEnabled() {
		t.Errorf("expected TOTP enabled with key")
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := Session{Expires: now.Add(time.Minute)}
	if s.Expired(now) {
		t.Errorf("expected session to be live")
	}
	s.Expires = now.Add(-time.Minute)
	if !s.Expired(now) {
		t.Errorf("expected session to be expired")
	}
}
