package domain

import "context"

// User is a tracking platform account.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Disabled bool   `json:"disabled"`
}

// Platform is the tracking platform contract. Lookups return nil, nil when
// no user matches.
type Platform interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByPhone(ctx context.Context, phone string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	SetUserDisabled(ctx context.Context, id int64, disabled bool) error
	TestConnection(ctx context.Context) error
}
