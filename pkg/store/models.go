package store

import "time"

// BookModel is the GORM model for catalog books.
type BookModel struct {
	ID        string    `gorm:"primaryKey;size:24"`
	Title     string    `gorm:"not null"`
	Author    string    `gorm:"not null"`
	Year      int       `gorm:"not null;index"`
	ISBN      string    `gorm:"column:isbn;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName keeps the table name stable regardless of naming strategy.
func (BookModel) TableName() string { return "books" }
