package handler_test

import (
	"context"
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

	"github.com/Astemirdum/lending-service/lending/internal/errs"
	"github.com/Astemirdum/lending-service/lending/internal/handler"
	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/pkg/validate"

	service_mocks "github.com/Astemirdum/lending-service/lending/internal/handler/mocks"
)

func day(s string) model.Date {
	d, _ := time.Parse(time.DateOnly, s)
	return model.NewDate(d)
}

func newTestServer(t *testing.T, svc handler.LendingService) *echo.Echo {
	t.Helper()
	h := handler.New(svc, handler.Resources{}, zap.NewExample().Named("test"))

	e := echo.New()
	e.Validator = validate.NewCustomValidator()
	e.POST("/loans", h.CreateLoan)
	e.POST("/loans/:loanId/return", h.ReturnLoan)
	e.DELETE("/admin/loans/:loanId", h.DeleteLoan)
	e.GET("/loans/history", h.ListLoanHistory)
	e.GET("/loans/:loanId", h.GetLoan)
	e.PUT("/books/:bookId", h.UpdateBook)
	e.GET("/admin/consistency", h.CheckConsistency)
	return e
}

func TestHandler_CreateLoan(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLendingService, req model.CreateLoanRequest)

	var tests = []struct {
		name         string
		body         string
		req          model.CreateLoanRequest
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"memberId":"M1","bookId":"B1"}`,
			req:  model.CreateLoanRequest{MemberID: "M1", BookID: "B1"},
			mockBehavior: func(r *service_mocks.MockLendingService, req model.CreateLoanRequest) {
				r.EXPECT().CreateLoan(gomock.Any(), req).Return(model.Loan{
					ID:       "01HQ",
					MemberID: "M1",
					BookID:   "B1",
					LoanDate: day("2024-03-01"),
					Status:   model.LoanStatusActive,
				}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":"01HQ","memberId":"M1","bookId":"B1","loanDate":"2024-03-01","returnDate":null,"status":"active"}`,
			},
		},
		{
			name:         "err. bookId required",
			body:         `{"memberId":"M1"}`,
			mockBehavior: func(r *service_mocks.MockLendingService, req model.CreateLoanRequest) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"Key: 'CreateLoanRequest.BookID' Error:Field validation for 'BookID' failed on the 'required' tag"}`,
			},
		},
		{
			name: "err. book not available",
			body: `{"memberId":"M2","bookId":"B1"}`,
			req:  model.CreateLoanRequest{MemberID: "M2", BookID: "B1"},
			mockBehavior: func(r *service_mocks.MockLendingService, req model.CreateLoanRequest) {
				r.EXPECT().CreateLoan(gomock.Any(), req).Return(model.Loan{}, errors.Wrap(errs.ErrBookNotAvailable, "book B1"))
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"book B1: book is not available"}`,
			},
		},
		{
			name: "err. unknown member",
			body: `{"memberId":"M9","bookId":"B1"}`,
			req:  model.CreateLoanRequest{MemberID: "M9", BookID: "B1"},
			mockBehavior: func(r *service_mocks.MockLendingService, req model.CreateLoanRequest) {
				r.EXPECT().CreateLoan(gomock.Any(), req).Return(model.Loan{}, errs.ErrUnknownMember)
			},
			response: response{
				expectedCode: http.StatusUnprocessableEntity,
				expectedBody: `{"message":"unknown member"}`,
			},
		},
		{
			name: "err. inconsistent state",
			body: `{"memberId":"M1","bookId":"B1"}`,
			req:  model.CreateLoanRequest{MemberID: "M1", BookID: "B1"},
			mockBehavior: func(r *service_mocks.MockLendingService, req model.CreateLoanRequest) {
				r.EXPECT().CreateLoan(gomock.Any(), req).Return(model.Loan{}, errs.ErrInconsistentState)
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"message":"inconsistent lending state"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLendingService(c)
			e := newTestServer(t, svc)

			r := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc, tt.req)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_ReturnLoan(t *testing.T) {
	t.Parallel()
	returned := day("2024-03-04")

	var tests = []struct {
		name         string
		loanID       string
		mockBehavior func(r *service_mocks.MockLendingService, loanID string)
		expectedCode int
		expectedBody string
	}{
		{
			name:   "ok",
			loanID: "L1",
			mockBehavior: func(r *service_mocks.MockLendingService, loanID string) {
				r.EXPECT().ReturnLoan(gomock.Any(), loanID).Return(model.Loan{
					ID: "L1", MemberID: "M1", BookID: "B1",
					LoanDate: day("2024-03-01"), ReturnDate: &returned, Status: model.LoanStatusReturned,
				}, nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: `{"id":"L1","memberId":"M1","bookId":"B1","loanDate":"2024-03-01","returnDate":"2024-03-04","status":"returned"}`,
		},
		{
			name:   "err. already returned",
			loanID: "L1",
			mockBehavior: func(r *service_mocks.MockLendingService, loanID string) {
				r.EXPECT().ReturnLoan(gomock.Any(), loanID).Return(model.Loan{}, errors.Wrap(errs.ErrAlreadyReturned, "loan L1"))
			},
			expectedCode: http.StatusConflict,
			expectedBody: `{"message":"loan L1: loan already returned"}`,
		},
		{
			name:   "err. unknown loan",
			loanID: "L9",
			mockBehavior: func(r *service_mocks.MockLendingService, loanID string) {
				r.EXPECT().ReturnLoan(gomock.Any(), loanID).Return(model.Loan{}, errs.ErrUnknownLoan)
			},
			expectedCode: http.StatusNotFound,
			expectedBody: `{"message":"unknown loan"}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLendingService(c)
			e := newTestServer(t, svc)

			r := httptest.NewRequest(http.MethodPost, "/loans/"+tt.loanID+"/return", http.NoBody)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc, tt.loanID)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.expectedCode, w.Code)
			require.Equal(t, tt.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_DeleteLoan(t *testing.T) {
	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockLendingService(c)
	e := newTestServer(t, svc)

	svc.EXPECT().DeleteLoan(gomock.Any(), "L1").Return(nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/admin/loans/L1", http.NoBody))
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandler_UpdateBookAvailability(t *testing.T) {
	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockLendingService(c)
	e := newTestServer(t, svc)

	yes := true
	svc.EXPECT().
		UpdateBook(gomock.Any(), "B1", model.BookRequest{Title: "Dune", Author: "Herbert", Available: &yes}).
		Return(model.Book{}, errors.Wrap(errs.ErrInvariantViolation, "book B1 available=false"))

	r := httptest.NewRequest(http.MethodPut, "/books/B1", strings.NewReader(`{"title":"Dune","author":"Herbert","available":true}`))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, `{"message":"book B1 available=false: availability is managed by lending"}`, strings.Trim(w.Body.String(), "\n"))
}

func TestHandler_Views(t *testing.T) {
	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockLendingService(c)
	e := newTestServer(t, svc)
	returned := day("2024-03-04")

	svc.EXPECT().ListLoanHistory(gomock.Any()).Return([]model.Loan{{
		ID: "L1", MemberID: "M1", BookID: "B1",
		LoanDate: day("2024-03-01"), ReturnDate: &returned, Status: model.LoanStatusReturned,
	}}, nil)
	svc.EXPECT().GetLoan(gomock.Any(), "L1").Return(model.LoanDetails{
		Loan: model.Loan{ID: "L1", MemberID: "M1", BookID: "B1", LoanDate: day("2024-03-01"), Status: model.LoanStatusActive},
		Book: &model.Book{ID: "B1", Title: "Dune", Author: "Herbert"},
	}, nil)
	svc.EXPECT().CheckConsistency(gomock.Any()).Return(model.ConsistencyReport{
		CheckedBooks: 1,
		Violations:   []model.AvailabilityViolation{},
	}, nil)

	tests := []struct {
		path string
		body string
	}{
		{
			path: "/loans/history",
			body: `[{"id":"L1","memberId":"M1","bookId":"B1","loanDate":"2024-03-01","returnDate":"2024-03-04","status":"returned"}]`,
		},
		{
			path: "/loans/L1",
			body: `{"loan":{"id":"L1","memberId":"M1","bookId":"B1","loanDate":"2024-03-01","returnDate":null,"status":"active"},"member":null,"book":{"id":"B1","title":"Dune","author":"Herbert","isbn":"","available":false}}`,
		},
		{
			path: "/admin/consistency",
			body: `{"checkedBooks":1,"violations":[]}`,
		},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody).WithContext(context.Background()))
		require.Equal(t, http.StatusOK, w.Code, tt.path)
		require.Equal(t, tt.body, strings.Trim(w.Body.String(), "\n"), tt.path)
	}
}

func TestHandler_ListMemberLoans(t *testing.T) {
	t.Parallel()
	var tests = []struct {
		name         string
		memberID     string
		mockBehavior func(r *service_mocks.MockLendingService, memberID string)
		expectedCode int
		expectedBody string
	}{
		{
			name:     "ok",
			memberID: "M1",
			mockBehavior: func(r *service_mocks.MockLendingService, memberID string) {
				r.EXPECT().ListMemberLoans(gomock.Any(), memberID).Return([]model.Loan{
					{ID: "L1", MemberID: "M1", BookID: "B1", LoanDate: day("2024-03-01"), Status: model.LoanStatusActive},
				}, nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: `[{"id":"L1","memberId":"M1","bookId":"B1","loanDate":"2024-03-01","returnDate":null,"status":"active"}]`,
		},
		{
			name:     "ok. no loans",
			memberID: "M2",
			mockBehavior: func(r *service_mocks.MockLendingService, memberID string) {
				r.EXPECT().ListMemberLoans(gomock.Any(), memberID).Return([]model.Loan{}, nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: `[]`,
		},
		{
			name:     "err. unknown member",
			memberID: "M9",
			mockBehavior: func(r *service_mocks.MockLendingService, memberID string) {
				r.EXPECT().ListMemberLoans(gomock.Any(), memberID).Return(nil, errs.ErrNotFound)
			},
			expectedCode: http.StatusNotFound,
			expectedBody: `{"message":"not found"}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLendingService(c)
			e := handler.New(svc, handler.Resources{}, zap.NewNop()).NewRouter()

			tt.mockBehavior(svc, tt.memberID)
			w := httptest.NewRecorder()
			e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/members/"+tt.memberID+"/loans", http.NoBody))

			require.Equal(t, tt.expectedCode, w.Code)
			require.Equal(t, tt.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}
