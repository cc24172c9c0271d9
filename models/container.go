package models

import "time"

// Container is a child of Entry, keyed by container number. Containers are
// replaced wholesale on each applied delivery: any persisted container absent
// from the new delivery is deleted.
type Container struct {
	ID      int `gorm:"primary_key" json:"id"`
	EntryId int `gorm:"index:idx_container_entry,priority:1;not null" json:"entry_id"`

	ContainerNumber string `gorm:"size:20;index:idx_container_entry,priority:2;not null" json:"container_number"`
	Size            string `gorm:"size:10" json:"size"`
	FclLcl          string `gorm:"size:3" json:"fcl_lcl"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
