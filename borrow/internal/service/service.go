package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/libshelf/borrow-service/borrow/internal/errs"
	"github.com/libshelf/borrow-service/borrow/internal/events"
	"github.com/libshelf/borrow-service/borrow/internal/model"
	"github.com/libshelf/borrow-service/borrow/internal/repository"
	"github.com/libshelf/borrow-service/pkg/kafka"
)

const (
	defaultLoanPeriod = 14 * 24 * time.Hour

	defaultPage  = 1
	defaultLimit = 10
)

// Service is the borrow ledger: it owns the loan lifecycle and the paired
// stock mutations. Validation failures are reported before any mutation;
// the mutation itself is atomic inside the repository.
type Service struct {
	log   *zap.Logger
	repo  repository.Repository
	books repository.BookStore
	users repository.UserStore
	pub   events.Publisher
}

func NewService(repo repository.Repository, books repository.BookStore, users repository.UserStore, pub events.Publisher, log *zap.Logger) *Service {
	return &Service{
		log:   log,
		repo:  repo,
		books: books,
		users: users,
		pub:   pub,
	}
}

func (s *Service) BorrowBook(ctx context.Context, req model.BorrowBookRequest) (model.BorrowRecord, error) {
	if _, err := s.users.FindByID(ctx, req.UserID); err != nil {
		return model.BorrowRecord{}, err
	}
	book, err := s.books.FindByID(ctx, req.BookID)
	if err != nil {
		return model.BorrowRecord{}, err
	}
	if book.Stock <= 0 {
		return model.BorrowRecord{}, errors.Wrapf(errs.ErrOutOfStock, "book %q", book.Title)
	}
	active, err := s.repo.HasActiveBorrow(ctx, req.UserID, req.BookID)
	if err != nil {
		return model.BorrowRecord{}, err
	}
	if active {
		return model.BorrowRecord{}, errs.ErrAlreadyBorrowed
	}

	borrowDate := time.Now().UTC()
	dueDate, err := resolveDueDate(req.DueDate, borrowDate)
	if err != nil {
		return model.BorrowRecord{}, err
	}

	// the repository re-checks stock and the active loan under a row lock;
	// the checks above only order the error reporting
	rec, err := s.repo.CreateBorrow(ctx, model.BorrowRecord{
		UserID:     req.UserID,
		BookID:     req.BookID,
		Status:     model.StatusBorrowed,
		BorrowDate: borrowDate,
		DueDate:    dueDate,
		Notes:      strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return model.BorrowRecord{}, err
	}

	s.pub.Publish(kafka.BorrowEvent{
		EventID:  uuid.NewString(),
		Type:     kafka.EventBorrowed,
		RecordID: rec.ID,
		UserID:   rec.UserID,
		BookID:   rec.BookID,
		At:       borrowDate,
	})
	s.log.Info("book borrowed",
		zap.Int("recordId", rec.ID), zap.Int("userId", rec.UserID), zap.Int("bookId", rec.BookID))
	return rec, nil
}

func (s *Service) ReturnBook(ctx context.Context, req model.ReturnBookRequest) (model.BorrowRecord, error) {
	returnedAt := time.Now().UTC()
	rec, err := s.repo.ReturnBorrow(ctx, req.BorrowRecordID, returnedAt, strings.TrimSpace(req.Notes))
	if err != nil {
		return model.BorrowRecord{}, err
	}

	s.pub.Publish(kafka.BorrowEvent{
		EventID:  uuid.NewString(),
		Type:     kafka.EventReturned,
		RecordID: rec.ID,
		UserID:   rec.UserID,
		BookID:   rec.BookID,
		At:       returnedAt,
	})
	s.log.Info("book returned",
		zap.Int("recordId", rec.ID), zap.Int("userId", rec.UserID), zap.Int("bookId", rec.BookID))
	return rec, nil
}

func (s *Service) ListRecords(ctx context.Context, f model.RecordFilter) (model.RecordPage, error) {
	if f.Page <= 0 {
		f.Page = defaultPage
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	return s.repo.ListRecords(ctx, f)
}

func (s *Service) GetRecord(ctx context.Context, id int) (model.BorrowRecord, error) {
	return s.repo.GetRecord(ctx, id)
}

func (s *Service) UserBorrowHistory(ctx context.Context, userID int) ([]model.BorrowRecord, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.RecordsByUser(ctx, userID)
}

func (s *Service) UserCurrentBooks(ctx context.Context, userID int) ([]model.BorrowRecord, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ActiveByUser(ctx, userID)
}

func (s *Service) BookBorrowHistory(ctx context.Context, bookID int) ([]model.BorrowRecord, error) {
	if _, err := s.books.FindByID(ctx, bookID); err != nil {
		return nil, err
	}
	return s.repo.RecordsByBook(ctx, bookID)
}

func (s *Service) OverdueBooks(ctx context.Context) ([]model.BorrowRecord, error) {
	return s.repo.Overdue(ctx)
}

func (s *Service) Statistics(ctx context.Context) (model.Statistics, error) {
	var stats model.Statistics
	gg, ctx := errgroup.WithContext(ctx)
	gg.Go(func() error {
		n, err := s.repo.CountByStatus(ctx, model.StatusBorrowed)
		stats.TotalBorrowed = n
		return err
	})
	gg.Go(func() error {
		n, err := s.repo.CountByStatus(ctx, model.StatusReturned)
		stats.TotalReturned = n
		return err
	})
	gg.Go(func() error {
		overdue, err := s.repo.Overdue(ctx)
		stats.OverdueCount = len(overdue)
		return err
	})
	if err := gg.Wait(); err != nil {
		return model.Statistics{}, err
	}
	stats.TotalRecords = stats.TotalBorrowed + stats.TotalReturned
	return stats, nil
}

func resolveDueDate(raw string, borrowDate time.Time) (time.Time, error) {
	if raw == "" {
		return borrowDate.Add(defaultLoanPeriod), nil
	}
	due, err := parseDate(raw)
	if err != nil {
		return time.Time{}, errors.Wrap(errs.ErrInvalidDueDate, raw)
	}
	if !due.After(borrowDate) {
		return time.Time{}, errs.ErrDueDateNotFuture
	}
	return due, nil
}

func parseDate(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
