package models

import (
	"time"
)

// Item rows carry explicitly assigned ids; allocation happens in the
// repository so the first item is id 0.
type Item struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement:false;type:bigint"`
	CollectionID int64     `json:"collectionID" gorm:"type:bigint;not null;index:item_collection_hash,unique"`
	ContentHash  string    `json:"contentHash" gorm:"type:text;not null;index:item_collection_hash,unique"`
	Owner        string    `json:"owner" gorm:"type:text;index"`
	CDate        time.Time `json:"cdate" gorm:"type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Collection struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement:false;type:bigint"`
	Name         string    `json:"name" gorm:"type:text;not null;index:collection_name,unique"`
	Description  string    `json:"description" gorm:"type:text"`
	Owner        string    `json:"owner" gorm:"type:text;index"`
	InboxAddress string    `json:"inboxAddress" gorm:"type:text;not null;index:collection_inbox,unique"`
	Fuses        uint8     `json:"fuses" gorm:"type:smallint;not null;default:0"`
	ItemCount    int64     `json:"itemCount" gorm:"type:bigint;not null;default:0"`
	Royalties    []Royalty `json:"royalties" gorm:"constraint:OnDelete:CASCADE;"`
	CDate        time.Time `json:"cdate" gorm:"type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Royalty struct {
	ID           int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	CollectionID int64  `json:"collectionID" gorm:"type:bigint;not null;index"`
	Recipient    string `json:"recipient" gorm:"type:text;not null"`
	Bps          uint32 `json:"bps" gorm:"not null"`
}

type Approval struct {
	Owner    string `json:"owner" gorm:"type:text;primaryKey"`
	Operator string `json:"operator" gorm:"type:text;primaryKey"`
	Granted  bool   `json:"granted" gorm:"type:boolean;not null;default:false"`
}

// Minter presence means the principal is on the collection's mint
// allow-list; revocation deletes the row.
type Minter struct {
	CollectionID int64  `json:"collectionID" gorm:"type:bigint;primaryKey"`
	Principal    string `json:"principal" gorm:"type:text;primaryKey"`
}
