package entity

import (
	"time"
)

// Airline maps a two-letter carrier prefix to a display name for templates
type Airline struct {
	ID        uint
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
