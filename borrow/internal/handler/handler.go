package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/libshelf/borrow-service/borrow/internal/errs"
	"github.com/libshelf/borrow-service/borrow/internal/model"
	"github.com/libshelf/borrow-service/pkg/auth"
	md "github.com/libshelf/borrow-service/pkg/middleware"
	"github.com/libshelf/borrow-service/pkg/validate"
)

type Handler struct {
	borrowSvc BorrowService
	log       *zap.Logger
}

func New(borrowSvc BorrowService, log *zap.Logger) *Handler {
	return &Handler{
		borrowSvc: borrowSvc,
		log:       log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
		md.AuthContext,
	)

	api.POST("/borrow", h.BorrowBook)
	api.POST("/borrow/return", h.ReturnBook)
	api.GET("/borrow", h.ListRecords)
	api.GET("/borrow/statistics", h.GetStatistics)
	api.GET("/borrow/overdue", h.GetOverdueBooks)
	api.GET("/borrow/my-books", h.GetMyCurrentBooks)
	api.GET("/borrow/my-history", h.GetMyBorrowHistory)
	api.GET("/borrow/user/:userId", h.GetUserBorrowHistory)
	api.GET("/borrow/book/:bookId", h.GetBookBorrowHistory)
	api.GET("/borrow/:id", h.GetRecord)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) BorrowBook(c echo.Context) error {
	if err := requireLibrarian(c); err != nil {
		return err
	}
	var req model.BorrowBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.borrowSvc.BorrowBook(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ReturnBook(c echo.Context) error {
	if err := requireLibrarian(c); err != nil {
		return err
	}
	var req model.ReturnBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.borrowSvc.ReturnBook(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRecords(c echo.Context) error {
	if err := requireLibrarian(c); err != nil {
		return err
	}
	var (
		f   model.RecordFilter
		err error
	)
	if v := c.QueryParam("userId"); v != "" {
		if f.UserID, err = strconv.Atoi(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("userId is invalid"))
		}
	}
	if v := c.QueryParam("bookId"); v != "" {
		if f.BookID, err = strconv.Atoi(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("bookId is invalid"))
		}
	}
	if v := c.QueryParam("status"); v != "" {
		f.Status = model.Status(v)
		if f.Status != model.StatusBorrowed && f.Status != model.StatusReturned {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("status is invalid"))
		}
	}
	if v := c.QueryParam("page"); v != "" {
		if f.Page, err = strconv.Atoi(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("page is invalid"))
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("limit is invalid"))
		}
	}

	page, err := h.borrowSvc.ListRecords(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetStatistics(c echo.Context) error {
	if err := requireLibrarian(c); err != nil {
		return err
	}
	stats, err := h.borrowSvc.Statistics(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetOverdueBooks(c echo.Context) error {
	if err := requireLibrarian(c); err != nil {
		return err
	}
	records, err := h.borrowSvc.OverdueBooks(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) GetMyCurrentBooks(c echo.Context) error {
	ctx := c.Request().Context()
	id, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "user identity is missing")
	}
	records, err := h.borrowSvc.UserCurrentBooks(ctx, id.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) GetMyBorrowHistory(c echo.Context) error {
	ctx := c.Request().Context()
	id, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "user identity is missing")
	}
	records, err := h.borrowSvc.UserBorrowHistory(ctx, id.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) GetUserBorrowHistory(c echo.Context) error {
	userID, err := strconv.Atoi(c.Param("userId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user ID format")
	}
	records, err := h.borrowSvc.UserBorrowHistory(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) GetBookBorrowHistory(c echo.Context) error {
	if err := requireLibrarian(c); err != nil {
		return err
	}
	bookID, err := strconv.Atoi(c.Param("bookId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid book ID format")
	}
	records, err := h.borrowSvc.BookBorrowHistory(c.Request().Context(), bookID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) GetRecord(c echo.Context) error {
	if err := requireLibrarian(c); err != nil {
		return err
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid borrow record ID format")
	}
	rec, err := h.borrowSvc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func requireLibrarian(c echo.Context) error {
	if !auth.IsLibrarian(c.Request().Context()) {
		return echo.NewHTTPError(http.StatusForbidden, "librarian role required")
	}
	return nil
}

// httpError maps the ledger error taxonomy onto HTTP statuses. Distinct
// failure kinds stay distinct so the UI can render an accurate message.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrUserNotFound),
		errors.Is(err, errs.ErrBookNotFound),
		errors.Is(err, errs.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrOutOfStock),
		errors.Is(err, errs.ErrAlreadyBorrowed),
		errors.Is(err, errs.ErrAlreadyReturned),
		errors.Is(err, errs.ErrInvalidDueDate),
		errors.Is(err, errs.ErrDueDateNotFuture):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrConcurrencyConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
