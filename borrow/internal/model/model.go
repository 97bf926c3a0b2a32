package model

import (
	"time"
)

type Status string

const (
	StatusBorrowed Status = "BORROWED"
	StatusReturned Status = "RETURNED"
)

type User struct {
	ID    int    `json:"id" db:"id"`
	Email string `json:"email" db:"email"`
	Name  string `json:"name" db:"name"`
	Role  string `json:"role" db:"role"`
}

type BookCategory struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Book struct {
	ID             int          `json:"id" db:"id"`
	Title          string       `json:"title" db:"title"`
	Author         string       `json:"author" db:"author"`
	Price          float64      `json:"price" db:"price"`
	Stock          int          `json:"stock" db:"stock"`
	BookCategoryID int          `json:"bookCategoryId" db:"book_category_id"`
	Category       BookCategory `json:"category" db:"category"`
}

// BorrowRecord is one loan of one book copy to one user.
// User, Book and Book.Category are filled from joins for display responses.
type BorrowRecord struct {
	ID         int        `json:"id" db:"id"`
	UserID     int        `json:"userId" db:"user_id"`
	BookID     int        `json:"bookId" db:"book_id"`
	Status     Status     `json:"status" db:"status"`
	BorrowDate time.Time  `json:"borrowDate" db:"borrow_date"`
	DueDate    time.Time  `json:"dueDate" db:"due_date"`
	ReturnDate *time.Time `json:"returnDate" db:"return_date"`
	Notes      string     `json:"notes" db:"notes"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	User       User       `json:"user" db:"user"`
	Book       Book       `json:"book" db:"book"`
}

type BorrowBookRequest struct {
	UserID  int    `json:"userId" validate:"required,gt=0"`
	BookID  int    `json:"bookId" validate:"required,gt=0"`
	DueDate string `json:"dueDate" validate:"omitempty"`
	Notes   string `json:"notes" validate:"omitempty,max=500"`
}

type ReturnBookRequest struct {
	BorrowRecordID int    `json:"borrowRecordId" validate:"required,gt=0"`
	Notes          string `json:"notes" validate:"omitempty,max=500"`
}

type RecordFilter struct {
	UserID int
	BookID int
	Status Status
	Page   int
	Limit  int
}

type RecordPage struct {
	Data       []BorrowRecord `json:"data"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
	HasNext    bool           `json:"hasNext"`
	HasPrev    bool           `json:"hasPrev"`
}

type Statistics struct {
	TotalBorrowed int `json:"totalBorrowed"`
	TotalReturned int `json:"totalReturned"`
	OverdueCount  int `json:"overdueCount"`
	TotalRecords  int `json:"totalRecords"`
}
