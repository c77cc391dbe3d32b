package cryptox

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp"
)

func testTOTPOptions() TOTPOptions {
	return TOTPOptions{Algorithm: otp.AlgorithmSHA1, Digits: 6, Period: 30, Window: 1}
}

func TestVerifyTOTP_CurrentStep(t *testing.T) {
	key := bytes.Repeat([]byte{0x2a}, 20)
	opts := testTOTPOptions()
	now := time.Unix(1700000000, 0)
	current := now.Unix() / int64(opts.Period)

	code, err := GenerateTOTP(key, current, opts)
	if err != nil {
		t.Fatalf("GenerateTOTP error: %v", err)
	}
	step, err := VerifyTOTP(key, code, now, opts)
	if err != nil {
		t.Fatalf("VerifyTOTP error: %v", err)
	}
	if step != current {
		t.Errorf("expected step %d, got %d", current, step)
	}
}

func TestVerifyTOTP_AdjacentStepWithinWindow(t *testing.T) {
	key := bytes.Repeat([]byte{0x2a}, 20)
	opts := testTOTPOptions()
	now := time.Unix(1700000000, 0)
	current := now.Unix() / int64(opts.Period)

	code, err := GenerateTOTP(key, current-1, opts)
	if err != nil {
		t.Fatalf("GenerateTOTP error: %v", err)
	}
	step, err := VerifyTOTP(key, code, now, opts)
	if err != nil {
		t.Fatalf("VerifyTOTP error: %v", err)
	}
	if step != current-1 {
		t.Errorf("expected step %d, got %d", current-1, step)
	}
}

func TestVerifyTOTP_OutsideWindow(t *testing.T) {
	key := bytes.Repeat([]byte{0x2a}, 20)
	opts := testTOTPOptions()
	now := time.Unix(1700000000, 0)
	current := now.Unix() / int64(opts.Period)

	code, err := GenerateTOTP(key, current+2, opts)
	if err != nil {
		t.Fatalf("GenerateTOTP error: %v", err)
	}
	if _, err := VerifyTOTP(key, code, now, opts); !errors.Is(err, ErrTOTPMismatch) {
		t.Errorf("expected ErrTOTPMismatch, got %v", err)
	}
}

func TestVerifyTOTP_ZeroWindow(t *testing.T) {
	key := bytes.Repeat([]byte{0x2a}, 20)
	opts := testTOTPOptions()
	opts.Window = 0
	now := time.Unix(1700000000, 0)
	current := now.Unix() / int64(opts.Period)

	code, err := GenerateTOTP(key, current-1, opts)
	if err != nil {
		t.Fatalf("GenerateTOTP error: %v", err)
	}
	if _, err := VerifyTOTP(key, code, now, opts); !errors.Is(err, ErrTOTPMismatch) {
		t.Errorf("expected ErrTOTPMismatch with zero window, got %v", err)
	}
}

func TestTOTPAlgorithm(t *testing.T) {
	for name, want := range map[string]otp.Algorithm{
		"SHA-1":   otp.AlgorithmSHA1,
		"SHA-256": otp.AlgorithmSHA256,
		"SHA-512": otp.AlgorithmSHA512,
	} {
		got, err := TOTPAlgorithm(name)
		if err != nil {
			t.Fatalf("TOTPAlgorithm(%q) error: %v", name, err)
		}
		if got != want {
			t.Errorf("TOTPAlgorithm(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := TOTPAlgorithm("MD5"); err == nil {
		t.Errorf("expected error for unknown algorithm")
	}
}
