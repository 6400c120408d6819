package messaging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"academycore/internal/textgen"
)

func TestFormatSLNumber(t *testing.T) {
	cases := map[string]string{
		"0771234567":       "94771234567",
		"771234567":        "94771234567",
		"94771234567":      "94771234567",
		"077 123-4567":     "94771234567",
		"+94 77 123 4567":  "94771234567",
		"12345":            "12345",
		"1771234567":       "1771234567",
		"":                 "",
		"0044771234567890": "0044771234567890",
	}
	for in, want := range cases {
		if got := FormatSLNumber(in); got != want {
			t.Fatalf("FormatSLNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWhatsAppLink(t *testing.T) {
	got := WhatsAppLink("0771234567", "Fee due: 1,500 & thanks?")
	want := "https://wa.me/94771234567?text=Fee%20due%3A%201%2C500%20%26%20thanks%3F"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if WhatsAppLink("771234567", "") != "https://wa.me/94771234567" {
		t.Fatalf("expected bare link without text")
	}
}

func TestRenderTemplates(t *testing.T) {
	d := Details{
		Academy:      "Bright Minds",
		StudentName:  "Nimal",
		ParentName:   "Mrs. Perera",
		DueDate:      time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		Amount:       decimal.RequireFromString("1500"),
		BillingMonth: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		Absences:     3,
	}
	reminder, err := Render(KindFeeReminder, d)
	if err != nil || !strings.Contains(reminder, "Mrs. Perera") || !strings.Contains(reminder, "2024-02-15") || !strings.Contains(reminder, "Bright Minds") {
		t.Fatalf("unexpected reminder %q %v", reminder, err)
	}
	inquiry, _ := Render(KindAbsenceInquiry, d)
	if !strings.Contains(inquiry, "3 consecutive classes") || strings.Contains(inquiry, "most recently") {
		t.Fatalf("unexpected inquiry %q", inquiry)
	}
	receipt, _ := Render(KindPaymentReceipt, Details{StudentName: "Nimal", Amount: decimal.RequireFromString("1250.5"), BillingMonth: d.BillingMonth})
	if !strings.Contains(receipt, "LKR 1250.50") || !strings.Contains(receipt, "February 2024") || !strings.Contains(receipt, "Dear Parent") || !strings.Contains(receipt, "the academy") {
		t.Fatalf("unexpected receipt %q", receipt)
	}
	if _, err := Render("poem", d); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestDrafterFallsBackToTemplate(t *testing.T) {
	d := Details{StudentName: "Nimal", Absences: 1}
	base, _ := Render(KindAbsenceInquiry, d)

	failing := NewDrafter(textgen.NewDegrading(textgen.Func(func(context.Context, string) (string, error) {
		return "", errors.New("offline")
	})))
	text, generated, err := failing.Draft(context.Background(), KindAbsenceInquiry, d)
	if err != nil || generated || text != base {
		t.Fatalf("expected template fallback, got %q %v %v", text, generated, err)
	}

	var prompt string
	working := NewDrafter(textgen.NewDegrading(textgen.Func(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "Hello from the academy", nil
	})))
	text, generated, err = working.Draft(context.Background(), KindAbsenceInquiry, d)
	if err != nil || !generated || text != "Hello from the academy" || !strings.Contains(prompt, base) {
		t.Fatalf("unexpected draft %q %v %v", text, generated, err)
	}

	if text, generated, _ := NewDrafter(nil).Draft(context.Background(), KindAbsenceInquiry, d); generated || text != base {
		t.Fatalf("nil generator should use template")
	}
}

func TestWriterOpener(t *testing.T) {
	var buf bytes.Buffer
	var o Opener = WriterOpener{W: &buf}
	if err := o.Open(context.Background(), "https://wa.me/94771234567"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if buf.String() != "https://wa.me/94771234567\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.Open(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled context error")
	}
}
