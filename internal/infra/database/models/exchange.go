package models

import (
	"time"
)

// Order holds the single live order per (kind, subject) pair. Posting the
// same pair again overwrites the row.
type Order struct {
	Kind      string    `json:"kind" gorm:"type:text;primaryKey"`
	Subject   int64     `json:"subject" gorm:"type:bigint;primaryKey"`
	Maker     string    `json:"maker" gorm:"type:text;not null;index"`
	Price     uint64    `json:"price" gorm:"type:numeric(20,0);not null"`
	Remaining uint64    `json:"remaining" gorm:"type:numeric(20,0);not null"`
	Expiry    time.Time `json:"expiry" gorm:"type:timestamp with time zone;not null"`
}

// ExchangeState is a single-row table (id 1) seeded at first boot.
type ExchangeState struct {
	ID           int64  `json:"id" gorm:"primaryKey;autoIncrement:false;type:bigint"`
	Owner        string `json:"owner" gorm:"type:text;not null"`
	PendingOwner string `json:"pendingOwner" gorm:"type:text"`
	FeeBps       uint32 `json:"feeBps" gorm:"not null;default:0"`
}

type FeeBalance struct {
	Asset  string `json:"asset" gorm:"type:text;primaryKey"`
	Amount uint64 `json:"amount" gorm:"type:numeric(20,0);not null;default:0"`
}

type AssetBalance struct {
	Asset     string `json:"asset" gorm:"type:text;primaryKey"`
	Principal string `json:"principal" gorm:"type:text;primaryKey"`
	Amount    uint64 `json:"amount" gorm:"type:numeric(20,0);not null;default:0"`
}

type AssetAllowance struct {
	Asset   string `json:"asset" gorm:"type:text;primaryKey"`
	Owner   string `json:"owner" gorm:"type:text;primaryKey"`
	Spender string `json:"spender" gorm:"type:text;primaryKey"`
	Amount  uint64 `json:"amount" gorm:"type:numeric(20,0);not null;default:0"`
}
