package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	"github.com/Astemirdum/lending-service/lending/internal/model"
	mw "github.com/Astemirdum/lending-service/pkg/middleware"
	"github.com/Astemirdum/lending-service/pkg/validate"
	_ "github.com/Astemirdum/lending-service/swagger"
)

type Resources struct {
	Members   ResourceService[model.Member]
	Students  ResourceService[model.Student]
	Employees ResourceService[model.Employee]
}

type Handler struct {
	lendingSvc LendingService
	resources  Resources
	log        *zap.Logger
}

func New(lendingSvc LendingService, resources Resources, log *zap.Logger) *Handler {
	return &Handler{
		lendingSvc: lendingSvc,
		resources:  resources,
		log:        log,
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
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", mw.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(mw.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		mw.NewRateLimiter(apiRPS),
	)

	newResourceHandler(h.resources.Students).register(api.Group("/students"))
	newResourceHandler(h.resources.Members).register(api.Group("/members"))
	newResourceHandler(h.resources.Employees).register(api.Group("/employees"))
	api.GET("/members/:id/loans", h.ListMemberLoans)

	api.GET("/books", h.ListBooks)
	api.GET("/books/available", h.ListAvailableBooks)
	api.GET("/books/loaned", h.ListLoanedBooks)
	api.GET("/books/:bookId", h.GetBook)
	api.POST("/books", h.CreateBook)
	api.PUT("/books/:bookId", h.UpdateBook)
	api.DELETE("/books/:bookId", h.DeleteBook)

	api.GET("/loans", h.ListLoans)
	api.GET("/loans/active", h.ListActiveLoans)
	api.GET("/loans/history", h.ListLoanHistory)
	api.GET("/loans/:loanId", h.GetLoan)
	api.POST("/loans", h.CreateLoan)
	api.POST("/loans/:loanId/return", h.ReturnLoan)

	admin := api.Group("/admin")
	admin.DELETE("/loans/:loanId", h.DeleteLoan)
	admin.GET("/consistency", h.CheckConsistency)
	admin.POST("/consistency/repair", h.RepairConsistency)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}
