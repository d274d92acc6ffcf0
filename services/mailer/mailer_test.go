package mailer

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"price_digest/services/report"
)

func TestBuildMsg(t *testing.T) {
	m := NewSMTPMailer(Config{Host: "localhost", Port: 587, From: "digest@example.com"}, nil)

	out, err := m.buildMsg(report.Message{To: "alice@example.com", Subject: "BTC Daily Close: $1.00", HTML: "<p>hi</p>"})
	if err != nil {
		t.Fatalf("buildMsg: %v", err)
	}
	if got := out.GetToString(); len(got) != 1 || !strings.Contains(got[0], "alice@example.com") {
		t.Errorf("To = %v", got)
	}

	if _, err := m.buildMsg(report.Message{To: "not an address"}); err == nil {
		t.Error("expected invalid recipient error")
	}
}

func TestSendFailureIsDeliveryError(t *testing.T) {
	// grab a free port and close it so the dial is refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := NewSMTPMailer(Config{
		Host:    "127.0.0.1",
		Port:    port,
		From:    "digest@example.com",
		Timeout: time.Second,
	}, nil)

	err = m.Send(context.Background(), report.Message{To: "alice@example.com", Subject: "s", HTML: "<p>x</p>"})
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DeliveryError", err)
	}
	if de.Recipient != "alice@example.com" {
		t.Errorf("recipient = %q", de.Recipient)
	}
}

func TestSendInvalidSender(t *testing.T) {
	m := NewSMTPMailer(Config{Host: "127.0.0.1", Port: 587, From: ""}, nil)
	err := m.Send(context.Background(), report.Message{To: "alice@example.com"})
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Errorf("err = %v, want DeliveryError", err)
	}
}
