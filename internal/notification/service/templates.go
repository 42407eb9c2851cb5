package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/noty/internal/notification/domain"
	"gorm.io/gorm"
)

// TemplateData is the variable set available to every message template.
type TemplateData struct {
	ClientName   string
	Value        decimal.Decimal
	DueDate      time.Time
	DaysOverdue  int
	Description  string
	InvoiceURL   string
	OverdueCount int
	OverdueTotal decimal.Decimal
	BlockAfter   int
}

var defaultTemplates = map[domain.MessageType]string{
	domain.MessageTypeWarning: "Olá {{.ClientName}}! Lembrete: sua fatura de {{money .Value}} vence em {{date .DueDate}}." +
		"{{if .InvoiceURL}} Pague pelo link: {{.InvoiceURL}}{{end}}",
	domain.MessageTypeOverdue: "Olá {{.ClientName}}, sua fatura de {{money .Value}} venceu em {{date .DueDate}}" +
		" e está em atraso há {{.DaysOverdue}} dia(s).{{if .InvoiceURL}} Regularize pelo link: {{.InvoiceURL}}{{end}}",
	domain.MessageTypeTraccarWarning: "Olá {{.ClientName}}, você possui {{.OverdueCount}} fatura(s) em atraso, total de {{money .OverdueTotal}}." +
		" Com {{.BlockAfter}} faturas em atraso o acesso ao rastreamento é bloqueado automaticamente.",
	domain.MessageTypeTraccarBlock: "Olá {{.ClientName}}, seu acesso ao rastreamento foi bloqueado por {{.OverdueCount}} fatura(s) em atraso" +
		" ({{money .OverdueTotal}}). Após o pagamento o acesso é liberado automaticamente.",
	domain.MessageTypeTraccarUnblock: "Olá {{.ClientName}}, recebemos seu pagamento e seu acesso ao rastreamento foi liberado. Obrigado!",
}

var templateFuncs = template.FuncMap{
	"money": FormatMoney,
	"date":  func(t time.Time) string { return t.Format("02/01/2006") },
}

// Templates renders message bodies, preferring an active database override
// over the built-in text.
type Templates struct {
	db *gorm.DB
}

func NewTemplates(db *gorm.DB) *Templates {
	return &Templates{db: db}
}

func (t *Templates) Render(ctx context.Context, messageType domain.MessageType, data TemplateData) (string, error) {
	body, err := t.body(ctx, messageType)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(string(messageType)).Funcs(templateFuncs).Option("missingkey=zero").Parse(body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// DefaultTemplate returns the built-in body of a message type.
func DefaultTemplate(messageType domain.MessageType) (string, bool) {
	body, ok := defaultTemplates[messageType]
	return body, ok
}

func (t *Templates) body(ctx context.Context, messageType domain.MessageType) (string, error) {
	if t.db != nil {
		var row domain.MessageTemplate
		err := t.db.WithContext(ctx).
			Where("type = ? AND is_active = ?", messageType, true).
			First(&row).Error
		if err == nil && strings.TrimSpace(row.Body) != "" {
			return row.Body, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}
	body, ok := defaultTemplates[messageType]
	if !ok {
		return "", domain.ErrTemplateNotFound
	}
	return body, nil
}

// FormatMoney renders an amount in Brazilian real notation, e.g. "R$ 1.234,50".
func FormatMoney(value decimal.Decimal) string {
	fixed := value.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	sign := ""
	if value.IsNegative() {
		sign = "-"
	}
	return sign + "R$ " + grouped.String() + "," + frac
}
