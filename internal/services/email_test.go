package services

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestEmailServiceSend(t *testing.T) {
	s := NewEmailService(EmailConfig{Host: "smtp.example.ac.id", Port: "587", User: "bursar", Password: "secret", From: "bursar@example.ac.id"})

	var gotAddr string
	var gotMsg []byte
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		return nil
	}

	if err := s.SendEmail([]string{"siti@example.ac.id"}, "Payment successful", "Your tuition payment SPP-001 has been received."); err != nil {
		t.Fatalf("SendEmail returned error: %v", err)
	}
	if gotAddr != "smtp.example.ac.id:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	for _, want := range []string{"To: siti@example.ac.id\r\n", "Subject: Payment successful\r\n", "SPP-001"} {
		if !strings.Contains(string(gotMsg), want) {
			t.Errorf("message should contain %q:\n%s", want, gotMsg)
		}
	}
}

func TestEmailServiceErrors(t *testing.T) {
	if err := NewEmailService(EmailConfig{}).SendEmail([]string{"a@b.c"}, "s", "b"); !errors.Is(err, ErrEmailNotConfigured) {
		t.Errorf("err = %v; want ErrEmailNotConfigured", err)
	}

	s := NewEmailService(EmailConfig{Host: "h", Port: "25", User: "u", Password: "p"})
	if err := s.SendEmail(nil, "s", "b"); err == nil {
		t.Error("expected an error without recipients")
	}

	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("535 authentication failed") }
	if err := s.SendEmail([]string{"a@b.c"}, "s", "b"); err == nil || !strings.Contains(err.Error(), "535") {
		t.Errorf("err = %v; want the smtp failure", err)
	}
}
