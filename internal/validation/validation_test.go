package validation

import "testing"

func TestIsValidAccount(t *testing.T) {
	valid := []string{"alice", "dev_42", "a-b-c", "x9y"}
	for _, v := range valid {
		if !IsValidAccount(v) {
			t.Errorf("Expected %q to be valid", v)
		}
	}

	invalid := []string{"", "ab", "-leading", "_leading", "UPPER", "has space", "way" + string(make([]byte, 70))}
	for _, v := range invalid {
		if IsValidAccount(v) {
			t.Errorf("Expected %q to be invalid", v)
		}
	}
}

func TestSanitizeAccount(t *testing.T) {
	if got := SanitizeAccount("  Alice-Dev "); got != "alice-dev" {
		t.Errorf("Expected alice-dev, got %q", got)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("Expected null bytes and whitespace stripped, got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("Expected truncation to 3 chars, got %q", got)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	errs := Validate(
		Required("title", ""),
		PositiveCents("hourly_rate_cents", 0),
		DurationInRange("estimated_minutes", 481),
	)
	if len(errs) != 3 {
		t.Fatalf("Expected 3 validation errors, got %d", len(errs))
	}
	if errs.Error() != "title: is required" {
		t.Errorf("Unexpected error string: %q", errs.Error())
	}
}

func TestDurationInRange(t *testing.T) {
	for _, minutes := range []int{1, 60, 480} {
		if errs := Validate(DurationInRange("d", minutes)); len(errs) != 0 {
			t.Errorf("Expected %d minutes to be valid", minutes)
		}
	}
	for _, minutes := range []int{0, -5, 481} {
		if errs := Validate(DurationInRange("d", minutes)); len(errs) == 0 {
			t.Errorf("Expected %d minutes to be invalid", minutes)
		}
	}
}
