package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/libshelf/borrow-service/borrow/internal/errs"
	"github.com/libshelf/borrow-service/borrow/internal/handler"
	service_mocks "github.com/libshelf/borrow-service/borrow/internal/handler/mocks"
	"github.com/libshelf/borrow-service/borrow/internal/model"
	"github.com/libshelf/borrow-service/pkg/auth"
	md "github.com/libshelf/borrow-service/pkg/middleware"
	"github.com/libshelf/borrow-service/pkg/validate"
)

var (
	borrowDate = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	dueDate    = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
)

func testRecord() model.BorrowRecord {
	return model.BorrowRecord{
		ID:         7,
		UserID:     1,
		BookID:     2,
		Status:     model.StatusBorrowed,
		BorrowDate: borrowDate,
		DueDate:    dueDate,
		CreatedAt:  borrowDate,
		User:       model.User{ID: 1, Email: "reader@example.com", Name: "Reader", Role: "USER"},
		Book: model.Book{
			ID: 2, Title: "Dune", Author: "Frank Herbert", Price: 9.99, Stock: 2, BookCategoryID: 1,
			Category: model.BookCategory{ID: 1, Name: "Sci-Fi"},
		},
	}
}

const testRecordJSON = `{"id":7,"userId":1,"bookId":2,"status":"BORROWED","borrowDate":"2024-05-01T10:00:00Z","dueDate":"2024-05-15T10:00:00Z","returnDate":null,"notes":"","createdAt":"2024-05-01T10:00:00Z","user":{"id":1,"email":"reader@example.com","name":"Reader","role":"USER"},"book":{"id":2,"title":"Dune","author":"Frank Herbert","price":9.99,"stock":2,"bookCategoryId":1,"category":{"id":1,"name":"Sci-Fi"}}}`

func newTestRouter(t *testing.T, register func(e *echo.Echo, h *handler.Handler)) (*echo.Echo, *service_mocks.MockBorrowService) {
	t.Helper()
	c := gomock.NewController(t)
	t.Cleanup(c.Finish)
	svc := service_mocks.NewMockBorrowService(c)
	h := handler.New(svc, zap.NewExample().Named("test"))

	e := echo.New()
	e.Validator = validate.NewCustomValidator()
	register(e, h)
	return e, svc
}

func TestHandler_BorrowBook(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockBorrowService)

	var tests = []struct {
		name         string
		body         string
		role         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"userId":1,"bookId":2}`,
			role: auth.RoleLibrarian,
			mockBehavior: func(r *service_mocks.MockBorrowService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), model.BorrowBookRequest{UserID: 1, BookID: 2}).
					Return(testRecord(), nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: testRecordJSON,
			},
		},
		{
			name: "err. user not found",
			body: `{"userId":42,"bookId":2}`,
			role: auth.RoleLibrarian,
			mockBehavior: func(r *service_mocks.MockBorrowService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), model.BorrowBookRequest{UserID: 42, BookID: 2}).
					Return(model.BorrowRecord{}, errors.Wrap(errs.ErrUserNotFound, "user 42"))
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"user 42: user not found"}`,
			},
		},
		{
			name: "err. out of stock",
			body: `{"userId":1,"bookId":2}`,
			role: auth.RoleLibrarian,
			mockBehavior: func(r *service_mocks.MockBorrowService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), model.BorrowBookRequest{UserID: 1, BookID: 2}).
					Return(model.BorrowRecord{}, errors.Wrapf(errs.ErrOutOfStock, "book %q", "Dune"))
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"book \"Dune\": out of stock"}`,
			},
		},
		{
			name: "err. already borrowed",
			body: `{"userId":1,"bookId":2}`,
			role: auth.RoleLibrarian,
			mockBehavior: func(r *service_mocks.MockBorrowService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), model.BorrowBookRequest{UserID: 1, BookID: 2}).
					Return(model.BorrowRecord{}, errs.ErrAlreadyBorrowed)
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"user already has this book borrowed"}`,
			},
		},
		{
			name: "err. due date not future",
			body: `{"userId":1,"bookId":2,"dueDate":"2020-01-01"}`,
			role: auth.RoleLibrarian,
			mockBehavior: func(r *service_mocks.MockBorrowService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), model.BorrowBookRequest{UserID: 1, BookID: 2, DueDate: "2020-01-01"}).
					Return(model.BorrowRecord{}, errs.ErrDueDateNotFuture)
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"due date must be in the future"}`,
			},
		},
		{
			name: "err. concurrency conflict",
			body: `{"userId":1,"bookId":2}`,
			role: auth.RoleLibrarian,
			mockBehavior: func(r *service_mocks.MockBorrowService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), model.BorrowBookRequest{UserID: 1, BookID: 2}).
					Return(model.BorrowRecord{}, errs.ErrConcurrencyConflict)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"concurrent borrow conflict"}`,
			},
		},
		{
			name:         "err. not a librarian",
			body:         `{"userId":1,"bookId":2}`,
			role:         auth.RoleUser,
			mockBehavior: func(r *service_mocks.MockBorrowService) {},
			response: response{
				expectedCode: http.StatusForbidden,
				expectedBody: `{"message":"librarian role required"}`,
			},
		},
		{
			name:         "err. missing ids",
			body:         `{"userId":1}`,
			role:         auth.RoleLibrarian,
			mockBehavior: func(r *service_mocks.MockBorrowService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
			},
		},
		{
			name: "err. internal",
			body: `{"userId":1,"bookId":2}`,
			role: auth.RoleLibrarian,
			mockBehavior: func(r *service_mocks.MockBorrowService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), model.BorrowBookRequest{UserID: 1, BookID: 2}).
					Return(model.BorrowRecord{}, errors.New("db internal"))
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"message":"db internal"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, svc := newTestRouter(t, func(e *echo.Echo, h *handler.Handler) {
				e.POST("/api/v1/borrow", h.BorrowBook, md.AuthContext)
			})
			tt.mockBehavior(svc)

			r := httptest.NewRequest(http.MethodPost, "/api/v1/borrow", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			r.Header.Set(auth.XUserIDHeader, "99")
			r.Header.Set(auth.XUserRoleHeader, tt.role)
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_ReturnBook(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockBorrowService)

	returned := testRecord()
	returned.Status = model.StatusReturned
	retDate := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	returned.ReturnDate = &retDate
	returned.Book.Stock = 3

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"borrowRecordId":7,"notes":"slightly worn"}`,
			mockBehavior: func(r *service_mocks.MockBorrowService) {
				r.EXPECT().
					ReturnBook(gomock.Any(), model.ReturnBookRequest{BorrowRecordID: 7, Notes: "slightly worn"}).
					Return(returned, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
			},
		},
		{
			name: "err. record not found",
			body: `{"borrowRecordId":404}`,
			mockBehavior: func(r *service_mocks.MockBorrowService) {
				r.EXPECT().
					ReturnBook(gomock.Any(), model.ReturnBookRequest{BorrowRecordID: 404}).
					Return(model.BorrowRecord{}, errors.Wrap(errs.ErrRecordNotFound, "record 404"))
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"record 404: borrow record not found"}`,
			},
		},
		{
			name: "err. already returned",
			body: `{"borrowRecordId":7}`,
			mockBehavior: func(r *service_mocks.MockBorrowService) {
				r.EXPECT().
					ReturnBook(gomock.Any(), model.ReturnBookRequest{BorrowRecordID: 7}).
					Return(model.BorrowRecord{}, errs.ErrAlreadyReturned)
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"book has already been returned"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, svc := newTestRouter(t, func(e *echo.Echo, h *handler.Handler) {
				e.POST("/api/v1/borrow/return", h.ReturnBook, md.AuthContext)
			})
			tt.mockBehavior(svc)

			r := httptest.NewRequest(http.MethodPost, "/api/v1/borrow/return", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			r.Header.Set(auth.XUserIDHeader, "99")
			r.Header.Set(auth.XUserRoleHeader, auth.RoleLibrarian)
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_GetStatistics(t *testing.T) {
	t.Parallel()
	e, svc := newTestRouter(t, func(e *echo.Echo, h *handler.Handler) {
		e.GET("/api/v1/borrow/statistics", h.GetStatistics, md.AuthContext)
	})
	svc.EXPECT().
		Statistics(gomock.Any()).
		Return(model.Statistics{TotalBorrowed: 3, TotalReturned: 5, OverdueCount: 1, TotalRecords: 8}, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/borrow/statistics", http.NoBody)
	r.Header.Set(auth.XUserIDHeader, "99")
	r.Header.Set(auth.XUserRoleHeader, auth.RoleLibrarian)
	w := httptest.NewRecorder()

	e.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `{"totalBorrowed":3,"totalReturned":5,"overdueCount":1,"totalRecords":8}`, strings.Trim(w.Body.String(), "\n"))
}

func TestHandler_GetRecord(t *testing.T) {
	t.Parallel()
	e, svc := newTestRouter(t, func(e *echo.Echo, h *handler.Handler) {
		e.GET("/api/v1/borrow/:id", h.GetRecord, md.AuthContext)
	})
	svc.EXPECT().
		GetRecord(gomock.Any(), 7).
		Return(testRecord(), nil)

	get := func(target string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, target, http.NoBody)
		r.Header.Set(auth.XUserIDHeader, "99")
		r.Header.Set(auth.XUserRoleHeader, auth.RoleLibrarian)
		w := httptest.NewRecorder()
		e.ServeHTTP(w, r)
		return w
	}

	w := get("/api/v1/borrow/7")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, testRecordJSON, strings.Trim(w.Body.String(), "\n"))

	w = get("/api/v1/borrow/abc")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, `{"message":"Invalid borrow record ID format"}`, strings.Trim(w.Body.String(), "\n"))
}

func TestHandler_GetMyCurrentBooks(t *testing.T) {
	t.Parallel()
	e, svc := newTestRouter(t, func(e *echo.Echo, h *handler.Handler) {
		e.GET("/api/v1/borrow/my-books", h.GetMyCurrentBooks, md.AuthContext)
	})
	svc.EXPECT().
		UserCurrentBooks(gomock.Any(), 5).
		Return([]model.BorrowRecord{}, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/borrow/my-books", http.NoBody)
	r.Header.Set(auth.XUserIDHeader, "5")
	r.Header.Set(auth.XUserRoleHeader, auth.RoleUser)
	w := httptest.NewRecorder()

	e.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `[]`, strings.Trim(w.Body.String(), "\n"))

	// no identity headers at all
	r = httptest.NewRequest(http.MethodGet, "/api/v1/borrow/my-books", http.NoBody)
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
