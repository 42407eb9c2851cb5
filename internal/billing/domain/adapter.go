package domain

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Customer is the provider's view of a client.
type Customer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	MobilePhone string `json:"mobilePhone"`
	Deleted     bool   `json:"deleted"`
}

// ProviderPayment is the provider's charge object. The same shape arrives in
// webhook deliveries, so every field is optional.
type ProviderPayment struct {
	ID          string           `json:"id"`
	Customer    string           `json:"customer"`
	Value       *decimal.Decimal `json:"value,omitempty"`
	Status      string           `json:"status"`
	DueDate     string           `json:"dueDate"`
	Description *string          `json:"description,omitempty"`
	BillingType string           `json:"billingType"`
	InvoiceURL  string           `json:"invoiceUrl"`
	PaymentDate string           `json:"paymentDate"`
	Deleted     bool             `json:"deleted"`
}

type CustomerPage struct {
	Items      []Customer `json:"data"`
	HasMore    bool       `json:"hasMore"`
	TotalCount int        `json:"totalCount"`
}

type PaymentPage struct {
	Items      []ProviderPayment `json:"data"`
	HasMore    bool              `json:"hasMore"`
	TotalCount int               `json:"totalCount"`
}

// Provider is the billing provider contract. List calls are offset-paginated;
// callers loop until HasMore is false.
type Provider interface {
	ListCustomers(ctx context.Context, offset, limit int) (CustomerPage, error)
	ListPayments(ctx context.Context, status string, offset, limit int) (PaymentPage, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetPayment(ctx context.Context, id string) (*ProviderPayment, error)
}

// ToUpsert converts a provider customer into a merge request.
func (c Customer) ToUpsert() ClientUpsert {
	in := ClientUpsert{ExternalID: strings.TrimSpace(c.ID)}
	in.Name = nonEmpty(c.Name)
	in.Email = nonEmpty(c.Email)
	in.Phone = nonEmpty(c.Phone)
	in.MobilePhone = nonEmpty(c.MobilePhone)
	active := !c.Deleted
	in.IsActive = &active
	return in
}

// ToUpsert converts a provider payment into a merge request for clientID.
// Empty or unparseable fields are left nil so they do not overwrite stored data.
func (p ProviderPayment) ToUpsert(clientID snowflake.ID) PaymentUpsert {
	in := PaymentUpsert{
		ExternalID: strings.TrimSpace(p.ID),
		ClientID:   clientID,
		Value:      p.Value,
	}
	if due, ok := parseDay(p.DueDate); ok {
		in.DueDate = &due
	}
	if status := ParsePaymentStatus(p.Status); status != "" {
		if p.Deleted {
			status = PaymentStatusDeleted
		}
		in.Status = &status
	}
	if p.Description != nil {
		description := *p.Description
		in.Description = &description
	}
	in.BillingType = nonEmpty(p.BillingType)
	in.InvoiceURL = nonEmpty(p.InvoiceURL)
	if paid, ok := parseDay(p.PaymentDate); ok {
		in.PaymentDate = &paid
	}
	return in
}

func nonEmpty(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func parseDay(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
