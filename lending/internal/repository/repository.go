package repository

import (
	"context"

	"github.com/Astemirdum/lending-service/lending/internal/model"
)

// BookRegistry holds books and their availability flag.
type BookRegistry interface {
	GetBook(ctx context.Context, id string) (model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)
	ListBooksByAvailability(ctx context.Context, available bool) ([]model.Book, error)
	CreateBook(ctx context.Context, book model.Book) error
	// UpdateBook rewrites title, author and isbn. The flag is left alone.
	UpdateBook(ctx context.Context, book model.Book) error
	DeleteBook(ctx context.Context, id string) error
	SetAvailability(ctx context.Context, id string, available bool) error
}

// LoanLedger stores loans. Loans only move from active to returned.
type LoanLedger interface {
	// CreateLoan stores loan as active with no return date.
	CreateLoan(ctx context.Context, loan model.Loan) (model.Loan, error)
	GetLoan(ctx context.Context, id string) (model.Loan, error)
	FindActiveByBook(ctx context.Context, bookID string) (model.Loan, bool, error)
	MarkReturned(ctx context.Context, id string, returnDate model.Date) (model.Loan, error)
	DeleteLoan(ctx context.Context, id string) error
	// ListLoans returns loans with the given status, or every loan for an empty status.
	ListLoans(ctx context.Context, status model.LoanStatus) ([]model.Loan, error)
	ListLoansByMember(ctx context.Context, memberID string) ([]model.Loan, error)
}

type Store interface {
	BookRegistry
	LoanLedger
}

// Repository runs a function against a Store inside one storage transaction.
// View sees a consistent snapshot; Update commits all of fn's writes or none of them.
type Repository interface {
	View(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	Update(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	Close() error
}

// ResourceStore is plain keyed storage for records without cross-record rules.
type ResourceStore[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	List(ctx context.Context) ([]T, error)
	// Create stores rec only if id is free, and fails with ErrAlreadyExists otherwise.
	Create(ctx context.Context, id string, rec T) error
	Put(ctx context.Context, id string, rec T) error
	Delete(ctx context.Context, id string) error
}

const (
	KindMember   = "members"
	KindStudent  = "students"
	KindEmployee = "employees"
)
