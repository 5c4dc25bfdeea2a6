package storage

import "time"

// Setting is a single persisted key/value pair. The widget keeps its whole
// saved state (city list, selection) under a handful of keys, so a plain
// settings table is all the schema there is.
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
