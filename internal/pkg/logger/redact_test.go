package logger

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"dana.reyes@example.com", "da***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"trailing@", "***@***"},
		{"@example.com", "***@***"},
	}
	for _, c := range cases {
		if got := MaskEmail(c.in); got != c.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMaskValue(t *testing.T) {
	if got := maskValue("contact_email", "dana.reyes@example.com"); got != "da***@example.com" {
		t.Errorf("email key not masked: %q", got)
	}
	if got := maskValue("drop_reason", "bounced for dana.reyes@example.com twice"); got != "bounced for da***@example.com twice" {
		t.Errorf("embedded address not masked: %q", got)
	}
	if got := maskValue("journey_id", "j-1"); got != "j-1" {
		t.Errorf("plain value changed: %q", got)
	}
}
