package handler

import (
	"context"

	"github.com/libshelf/borrow-service/borrow/internal/model"
	"github.com/libshelf/borrow-service/borrow/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type BorrowService interface {
	BorrowBook(ctx context.Context, req model.BorrowBookRequest) (model.BorrowRecord, error)
	ReturnBook(ctx context.Context, req model.ReturnBookRequest) (model.BorrowRecord, error)
	ListRecords(ctx context.Context, f model.RecordFilter) (model.RecordPage, error)
	GetRecord(ctx context.Context, id int) (model.BorrowRecord, error)
	UserBorrowHistory(ctx context.Context, userID int) ([]model.BorrowRecord, error)
	UserCurrentBooks(ctx context.Context, userID int) ([]model.BorrowRecord, error)
	BookBorrowHistory(ctx context.Context, bookID int) ([]model.BorrowRecord, error)
	OverdueBooks(ctx context.Context) ([]model.BorrowRecord, error)
	Statistics(ctx context.Context) (model.Statistics, error)
}

var _ BorrowService = (*service.Service)(nil)
