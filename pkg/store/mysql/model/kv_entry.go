package model

import "time"

// KVEntry MySQL model for kv_entries table; one row per table/key pair
type KVEntry struct {
	Table     string    `gorm:"column:table_name;type:varchar(64);primaryKey" json:"table_name"`
	EntryKey  string    `gorm:"column:entry_key;type:varchar(255);primaryKey" json:"entry_key"`
	Value     string    `gorm:"column:value;type:longtext;not null" json:"value"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
}

// TableName specifies the table name
func (KVEntry) TableName() string {
	return "kv_entries"
}
