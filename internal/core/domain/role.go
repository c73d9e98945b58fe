package domain

import "time"

type Role struct {
	Name        string
	Permissions []string
	CreatedAt   time.Time
}
