package webhook

import (
	"reflect"
	"testing"
)

func TestNormalizeCandidatesStripsVendorPrefixAndPunctuation(t *testing.T) {
	got := NormalizeCandidates("whatsapp:+971 (50) 123-4567", "971")
	want := []string{"971501234567", "501234567"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("candidates = %v, want %v", got, want)
	}
}

func TestNormalizeCandidatesTriesWithAndWithoutCountryCode(t *testing.T) {
	got := NormalizeCandidates("whatsapp:0501234567", "971")
	want := []string{"0501234567", "9710501234567", "971501234567"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("candidates = %v, want %v", got, want)
	}
}

func TestNormalizeCandidatesNoCountryCode(t *testing.T) {
	got := NormalizeCandidates("+15551234567", "")
	want := []string{"15551234567"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("candidates = %v, want %v", got, want)
	}
}
