package models

import "time"

// EntryComment is an append-only child of Entry. Dedup key within an entry is
// (generated_at, username, body); re-delivery of an identical comment line does
// not create a second row.
type EntryComment struct {
	ID      int `gorm:"primary_key" json:"id"`
	EntryId int `gorm:"index;not null" json:"entry_id"`

	GeneratedAt *time.Time `json:"generated_at"`
	Username    string     `gorm:"size:30" json:"username"`
	Body        string     `gorm:"type:text" json:"body"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
