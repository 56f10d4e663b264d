package tools

import "testing"

func TestNormalizeChannelAPhonePrefixesBrazilianNationalNumber(t *testing.T) {
	got, err := NormalizeChannelAPhone("(11) 99999-0000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "5511999990000" {
		t.Fatalf("got %q, want 5511999990000", got)
	}
}

func TestNormalizeChannelAPhoneLeavesCountryCodePresent(t *testing.T) {
	got, err := NormalizeChannelAPhone("+44 20 7946 0958")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "442079460958" {
		t.Fatalf("got %q, want 442079460958", got)
	}
}

func TestNormalizeChannelAPhoneRejectsEmpty(t *testing.T) {
	if _, err := NormalizeChannelAPhone("   "); err == nil {
		t.Fatal("expected an error for an empty phone")
	}
}

func TestNormalizeChannelAPhoneRejectsTooShort(t *testing.T) {
	if _, err := NormalizeChannelAPhone("12345"); err == nil {
		t.Fatal("expected an error for a too-short phone")
	}
}
