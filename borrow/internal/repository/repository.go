package repository

import (
	"context"
	"database/sql"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/libshelf/borrow-service/borrow/internal/errs"
	"github.com/libshelf/borrow-service/borrow/internal/model"
)

type Repository interface {
	CreateBorrow(ctx context.Context, rec model.BorrowRecord) (model.BorrowRecord, error)
	ReturnBorrow(ctx context.Context, recordID int, returnedAt time.Time, notes string) (model.BorrowRecord, error)
	HasActiveBorrow(ctx context.Context, userID, bookID int) (bool, error)
	ListRecords(ctx context.Context, f model.RecordFilter) (model.RecordPage, error)
	GetRecord(ctx context.Context, id int) (model.BorrowRecord, error)
	RecordsByUser(ctx context.Context, userID int) ([]model.BorrowRecord, error)
	ActiveByUser(ctx context.Context, userID int) ([]model.BorrowRecord, error)
	RecordsByBook(ctx context.Context, bookID int) ([]model.BorrowRecord, error)
	Overdue(ctx context.Context) ([]model.BorrowRecord, error)
	CountByStatus(ctx context.Context, status model.Status) (int, error)
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	borrowTableName     = `borrow_records`
	booksTableName      = `books`
	usersTableName      = `users`
	categoriesTableName = `book_categories`

	returnNotesMarker = "Return notes: "
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var recordColumns = []string{
	"br.id", "br.user_id", "br.book_id", "br.status", "br.borrow_date", "br.due_date",
	"br.return_date", "br.notes", "br.created_at",
	`u.id as "user.id"`, `u.email as "user.email"`, `u.name as "user.name"`, `u.role as "user.role"`,
	`b.id as "book.id"`, `b.title as "book.title"`, `b.author as "book.author"`,
	`b.price as "book.price"`, `b.stock as "book.stock"`, `b.book_category_id as "book.book_category_id"`,
	`c.id as "book.category.id"`, `c.name as "book.category.name"`,
}

func recordQuery() sq.SelectBuilder {
	return qb.Select(recordColumns...).
		From(borrowTableName + " br").
		Join(usersTableName + " u on u.id = br.user_id").
		Join(booksTableName + " b on b.id = br.book_id").
		Join(categoriesTableName + " c on c.id = b.book_category_id")
}

// CreateBorrow runs the whole read-check-mutate sequence in one transaction:
// the book row is locked, stock and the active-loan uniqueness are re-checked
// under that lock, and the insert and the stock decrement commit together.
func (r *repository) CreateBorrow(ctx context.Context, rec model.BorrowRecord) (model.BorrowRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.BorrowRecord{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	var book struct {
		ID    int    `db:"id"`
		Title string `db:"title"`
		Stock int    `db:"stock"`
	}
	q := `select id, title, stock from books where id = $1 for update`
	if err := tx.GetContext(ctx, &book, q, rec.BookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRecord{}, errors.Wrapf(errs.ErrBookNotFound, "book %d", rec.BookID)
		}
		return model.BorrowRecord{}, err
	}
	if book.Stock <= 0 {
		return model.BorrowRecord{}, errors.Wrapf(errs.ErrOutOfStock, "book %q", book.Title)
	}

	var active bool
	q = `select exists(select 1 from borrow_records where user_id = $1 and book_id = $2 and status = $3)`
	if err := tx.GetContext(ctx, &active, q, rec.UserID, rec.BookID, model.StatusBorrowed); err != nil {
		return model.BorrowRecord{}, err
	}
	if active {
		return model.BorrowRecord{}, errs.ErrAlreadyBorrowed
	}

	q, args, err := qb.Insert(borrowTableName).
		Columns("user_id", "book_id", "status", "borrow_date", "due_date", "notes").
		Values(rec.UserID, rec.BookID, rec.Status, rec.BorrowDate, rec.DueDate, rec.Notes).
		Suffix("returning id").
		ToSql()
	if err != nil {
		return model.BorrowRecord{}, err
	}
	var id int
	if err := tx.GetContext(ctx, &id, q, args...); err != nil {
		r.log.Error("CreateBorrow insert", zap.String("q", q), zap.Any("args", args))
		return model.BorrowRecord{}, wrapPgErr(err)
	}

	q = `update books set stock = stock - 1, updated_at = now() where id = $1`
	if _, err := tx.ExecContext(ctx, q, rec.BookID); err != nil {
		return model.BorrowRecord{}, wrapPgErr(err)
	}

	if err := tx.Commit(); err != nil {
		return model.BorrowRecord{}, wrapPgErr(err)
	}

	return r.GetRecord(ctx, id)
}

// ReturnBorrow flips BORROWED -> RETURNED and gives the copy back to stock,
// atomically. Return notes are appended to the borrow-time notes.
func (r *repository) ReturnBorrow(ctx context.Context, recordID int, returnedAt time.Time, notes string) (model.BorrowRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.BorrowRecord{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	var rec struct {
		ID     int          `db:"id"`
		BookID int          `db:"book_id"`
		Status model.Status `db:"status"`
		Notes  string       `db:"notes"`
	}
	q := `select id, book_id, status, notes from borrow_records where id = $1 for update`
	if err := tx.GetContext(ctx, &rec, q, recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRecord{}, errors.Wrapf(errs.ErrRecordNotFound, "record %d", recordID)
		}
		return model.BorrowRecord{}, err
	}
	if rec.Status == model.StatusReturned {
		return model.BorrowRecord{}, errs.ErrAlreadyReturned
	}

	merged := rec.Notes
	if notes != "" {
		if merged != "" {
			merged += "\n" + returnNotesMarker + notes
		} else {
			merged = returnNotesMarker + notes
		}
	}

	q = `update borrow_records set status = $2, return_date = $3, notes = $4, updated_at = now() where id = $1`
	if _, err := tx.ExecContext(ctx, q, recordID, model.StatusReturned, returnedAt, merged); err != nil {
		return model.BorrowRecord{}, wrapPgErr(err)
	}

	q = `update books set stock = stock + 1, updated_at = now() where id = $1`
	if _, err := tx.ExecContext(ctx, q, rec.BookID); err != nil {
		return model.BorrowRecord{}, wrapPgErr(err)
	}

	if err := tx.Commit(); err != nil {
		return model.BorrowRecord{}, wrapPgErr(err)
	}

	return r.GetRecord(ctx, recordID)
}

func (r *repository) HasActiveBorrow(ctx context.Context, userID, bookID int) (bool, error) {
	q := `select exists(select 1 from borrow_records where user_id = $1 and book_id = $2 and status = $3)`
	var active bool
	if err := r.db.GetContext(ctx, &active, q, userID, bookID, model.StatusBorrowed); err != nil {
		return false, err
	}
	return active, nil
}

func (r *repository) ListRecords(ctx context.Context, f model.RecordFilter) (model.RecordPage, error) {
	countQ := qb.Select("count(*)").From(borrowTableName + " br")
	countQ = applyFilter(countQ, f)
	q, args, err := countQ.ToSql()
	if err != nil {
		return model.RecordPage{}, err
	}
	var total int
	if err := r.db.GetContext(ctx, &total, q, args...); err != nil {
		return model.RecordPage{}, err
	}

	dataQ := applyFilter(recordQuery(), f).
		OrderBy("br.created_at desc").
		Limit(uint64(f.Limit)).
		Offset(uint64((f.Page - 1) * f.Limit))
	q, args, err = dataQ.ToSql()
	if err != nil {
		return model.RecordPage{}, err
	}
	r.log.Debug("ListRecords", zap.String("query", q), zap.Any("args", args))

	records := make([]model.BorrowRecord, 0, f.Limit)
	if err := r.db.SelectContext(ctx, &records, q, args...); err != nil {
		return model.RecordPage{}, err
	}

	totalPages := int(math.Ceil(float64(total) / float64(f.Limit)))
	return model.RecordPage{
		Data:       records,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: totalPages,
		HasNext:    f.Page < totalPages,
		HasPrev:    f.Page > 1,
	}, nil
}

func applyFilter(b sq.SelectBuilder, f model.RecordFilter) sq.SelectBuilder {
	if f.UserID != 0 {
		b = b.Where(sq.Eq{"br.user_id": f.UserID})
	}
	if f.BookID != 0 {
		b = b.Where(sq.Eq{"br.book_id": f.BookID})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"br.status": f.Status})
	}
	return b
}

func (r *repository) GetRecord(ctx context.Context, id int) (model.BorrowRecord, error) {
	q, args, err := recordQuery().
		Where(sq.Eq{"br.id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.BorrowRecord{}, err
	}
	var rec model.BorrowRecord
	if err := r.db.GetContext(ctx, &rec, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRecord{}, errors.Wrapf(errs.ErrRecordNotFound, "record %d", id)
		}
		return model.BorrowRecord{}, err
	}
	return rec, nil
}

func (r *repository) RecordsByUser(ctx context.Context, userID int) ([]model.BorrowRecord, error) {
	return r.selectRecords(ctx, recordQuery().
		Where(sq.Eq{"br.user_id": userID}).
		OrderBy("br.created_at desc"))
}

// ActiveByUser orders by due date ascending: the soonest-due loan comes first.
func (r *repository) ActiveByUser(ctx context.Context, userID int) ([]model.BorrowRecord, error) {
	return r.selectRecords(ctx, recordQuery().
		Where(sq.Eq{"br.user_id": userID}).
		Where(sq.Eq{"br.status": model.StatusBorrowed}).
		OrderBy("br.due_date asc"))
}

func (r *repository) RecordsByBook(ctx context.Context, bookID int) ([]model.BorrowRecord, error) {
	return r.selectRecords(ctx, recordQuery().
		Where(sq.Eq{"br.book_id": bookID}).
		OrderBy("br.created_at desc"))
}

func (r *repository) Overdue(ctx context.Context) ([]model.BorrowRecord, error) {
	return r.selectRecords(ctx, recordQuery().
		Where(sq.Eq{"br.status": model.StatusBorrowed}).
		Where(sq.Expr("br.due_date < now()")).
		OrderBy("br.due_date asc"))
}

func (r *repository) selectRecords(ctx context.Context, b sq.SelectBuilder) ([]model.BorrowRecord, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var records []model.BorrowRecord
	if err := r.db.SelectContext(ctx, &records, q, args...); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) CountByStatus(ctx context.Context, status model.Status) (int, error) {
	q, args, err := qb.Select("count(*)").
		From(borrowTableName).
		Where(sq.Eq{"status": status}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	if err := r.db.GetContext(ctx, &count, q, args...); err != nil {
		return 0, err
	}
	return count, nil
}

// wrapPgErr maps postgres failure codes onto the ledger error taxonomy:
// the partial unique index fires as AlreadyBorrowed, the stock check
// constraint as OutOfStock, serialization/deadlock as a retryable conflict.
func wrapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return errs.ErrAlreadyBorrowed
		case pgerrcode.CheckViolation:
			return errs.ErrOutOfStock
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return errs.ErrConcurrencyConflict
		}
	}
	return err
}
