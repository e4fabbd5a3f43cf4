package entity

import (
	"time"
)

// Timezone represents timezone information for airports. TzName is an IANA
// zone name suitable for time.LoadLocation.
type Timezone struct {
	ID          uint
	AirportCode string
	AirportName string
	CityCode    string
	CityName    string
	GmtTz       string
	TzName      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
