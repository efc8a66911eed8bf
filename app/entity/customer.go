package entity

import "time"

type Customer struct {
	ID uint64

	CustomerID     string
	InternalUserID *string
	Email          string
	DisplayName    string

	CreatedAt time.Time
	UpdatedAt time.Time
}
