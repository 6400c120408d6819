package messaging

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

// Kind names a message template.
type Kind string

const (
	KindFeeReminder    Kind = "fee_reminder"
	KindAbsenceInquiry Kind = "absence_inquiry"
	KindPaymentReceipt Kind = "payment_receipt"
)

const (
	defaultAcademyName  = "the academy"
	defaultCurrencyCode = "LKR"
)

// Details fills a template. Zero values render neutrally.
type Details struct {
	Academy      string
	Currency     string
	StudentName  string
	ParentName   string
	DueDate      time.Time
	Amount       decimal.Decimal
	BillingMonth time.Time
	PaidOn       time.Time
	Absences     int
	LastClass    time.Time
}

var templates = map[Kind]*template.Template{
	KindFeeReminder: template.Must(template.New(string(KindFeeReminder)).Funcs(funcs).Parse(
		`Dear {{greeting .}}, this is a friendly reminder from {{academy .}} that the class fee for {{.StudentName}}` +
			`{{if not .DueDate.IsZero}} was due on {{date .DueDate}}{{else}} is due{{end}}. Please make the payment at your earliest convenience. Thank you!`)),
	KindAbsenceInquiry: template.Must(template.New(string(KindAbsenceInquiry)).Funcs(funcs).Parse(
		`Dear {{greeting .}}, we noticed that {{.StudentName}} has missed {{.Absences}} consecutive class{{if ne .Absences 1}}es{{end}}` +
			`{{if not .LastClass.IsZero}} (most recently on {{date .LastClass}}){{end}}. Is everything alright? Please let {{academy .}} know.`)),
	KindPaymentReceipt: template.Must(template.New(string(KindPaymentReceipt)).Funcs(funcs).Parse(
		`Dear {{greeting .}}, {{academy .}} received {{money .}} for {{.StudentName}}` +
			`{{if not .BillingMonth.IsZero}} for {{month .BillingMonth}}{{end}}{{if not .PaidOn.IsZero}} on {{date .PaidOn}}{{end}}. Thank you!`)),
}

var funcs = template.FuncMap{
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	"month": func(t time.Time) string { return t.Format("January 2006") },
	"greeting": func(d Details) string {
		if d.ParentName != "" {
			return d.ParentName
		}
		return "Parent"
	},
	"academy": func(d Details) string {
		if d.Academy != "" {
			return d.Academy
		}
		return defaultAcademyName
	},
	"money": func(d Details) string {
		currency := d.Currency
		if currency == "" {
			currency = defaultCurrencyCode
		}
		return currency + " " + d.Amount.StringFixed(2)
	},
}

// Render fills the named template.
func Render(kind Kind, d Details) (string, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return "", fmt.Errorf("unknown message kind %q", kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	return buf.String(), nil
}
