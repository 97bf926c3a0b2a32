package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/libshelf/borrow-service/borrow/internal/errs"
	"github.com/libshelf/borrow-service/borrow/internal/model"
)

// UserStore and BookStore are the narrow read views of the collaborator
// entities the ledger needs; user/book management itself lives elsewhere.
type UserStore interface {
	FindByID(ctx context.Context, id int) (model.User, error)
}

type BookStore interface {
	FindByID(ctx context.Context, id int) (model.Book, error)
}

type userStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *userStore {
	return &userStore{db: db}
}

func (s *userStore) FindByID(ctx context.Context, id int) (model.User, error) {
	q, args, err := qb.Select("id", "email", "name", "role").
		From(usersTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := s.db.GetContext(ctx, &user, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errors.Wrapf(errs.ErrUserNotFound, "user %d", id)
		}
		return model.User{}, err
	}
	return user, nil
}

type bookStore struct {
	db *sqlx.DB
}

func NewBookStore(db *sqlx.DB) *bookStore {
	return &bookStore{db: db}
}

func (s *bookStore) FindByID(ctx context.Context, id int) (model.Book, error) {
	q, args, err := qb.Select("b.id", "b.title", "b.author", "b.price", "b.stock", "b.book_category_id",
		`c.id as "category.id"`, `c.name as "category.name"`).
		From(booksTableName+" b").
		Join(categoriesTableName+" c on c.id = b.book_category_id").
		Where(sq.Eq{"b.id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := s.db.GetContext(ctx, &book, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errors.Wrapf(errs.ErrBookNotFound, "book %d", id)
		}
		return model.Book{}, err
	}
	return book, nil
}
