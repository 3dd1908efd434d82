package handler

import (
	"context"

	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/lending/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LendingService interface {
	CreateLoan(ctx context.Context, req model.CreateLoanRequest) (model.Loan, error)
	ReturnLoan(ctx context.Context, loanID string) (model.Loan, error)
	DeleteLoan(ctx context.Context, loanID string) error
	GetLoan(ctx context.Context, loanID string) (model.LoanDetails, error)
	ListLoans(ctx context.Context) ([]model.Loan, error)
	ListActiveLoans(ctx context.Context) ([]model.Loan, error)
	ListLoanHistory(ctx context.Context) ([]model.Loan, error)
	ListMemberLoans(ctx context.Context, memberID string) ([]model.Loan, error)

	GetBook(ctx context.Context, id string) (model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)
	ListAvailableBooks(ctx context.Context) ([]model.Book, error)
	ListLoanedBooks(ctx context.Context) ([]model.Book, error)
	CreateBook(ctx context.Context, req model.BookRequest) (model.Book, error)
	UpdateBook(ctx context.Context, id string, req model.BookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, id string) error

	CheckConsistency(ctx context.Context) (model.ConsistencyReport, error)
	RepairConsistency(ctx context.Context) ([]model.Book, error)
}

var _ LendingService = (*service.Service)(nil)
