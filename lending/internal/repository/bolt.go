package repository

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/lending-service/lending/internal/errs"
	"github.com/Astemirdum/lending-service/lending/internal/model"
)

const (
	booksBucket       = "books"
	loansBucket       = "loans"
	activeLoansBucket = "loans.active_by_book"
)

// BoltBuckets lists every bucket the bolt backend expects to exist.
var BoltBuckets = []string{
	booksBucket,
	loansBucket,
	activeLoansBucket,
	KindMember,
	KindStudent,
	KindEmployee,
}

type boltRepository struct {
	client *bolt.DB
	log    *zap.Logger
}

func NewBoltRepository(client *bolt.DB, log *zap.Logger) *boltRepository {
	return &boltRepository{
		client: client,
		log:    log.Named("repo"),
	}
}

func (r *boltRepository) View(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	return r.client.View(func(tx *bolt.Tx) error {
		return fn(ctx, &boltStore{tx: tx})
	})
}

// Update runs fn in a bolt read-write transaction. Bolt discards the
// transaction when fn fails, so nothing fn wrote survives.
func (r *boltRepository) Update(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	return r.client.Update(func(tx *bolt.Tx) error {
		return fn(ctx, &boltStore{tx: tx})
	})
}

func (r *boltRepository) Close() error {
	return r.client.Close()
}

type boltStore struct {
	tx *bolt.Tx
}

func (s *boltStore) bucket(name string) *bolt.Bucket {
	return s.tx.Bucket([]byte(name))
}

func (s *boltStore) GetBook(_ context.Context, id string) (model.Book, error) {
	var book model.Book
	result := s.bucket(booksBucket).Get([]byte(id))
	if result == nil {
		return book, errs.ErrNotFound
	}
	err := json.Unmarshal(result, &book)
	return book, err
}

func (s *boltStore) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.listBooks(func(model.Book) bool { return true })
}

func (s *boltStore) ListBooksByAvailability(_ context.Context, available bool) ([]model.Book, error) {
	return s.listBooks(func(b model.Book) bool { return b.Available == available })
}

func (s *boltStore) listBooks(keep func(model.Book) bool) ([]model.Book, error) {
	c := s.bucket(booksBucket).Cursor()

	books := []model.Book{}
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var book model.Book
		if err := json.Unmarshal(v, &book); err != nil {
			return nil, err
		}
		if keep(book) {
			books = append(books, book)
		}
	}
	return books, nil
}

func (s *boltStore) CreateBook(_ context.Context, book model.Book) error {
	b := s.bucket(booksBucket)
	if b.Get([]byte(book.ID)) != nil {
		return errors.Wrapf(errs.ErrAlreadyExists, "book %s", book.ID)
	}
	return s.putJSON(b, book.ID, book)
}

func (s *boltStore) UpdateBook(ctx context.Context, book model.Book) error {
	stored, err := s.GetBook(ctx, book.ID)
	if err != nil {
		return err
	}
	stored.Title = book.Title
	stored.Author = book.Author
	stored.ISBN = book.ISBN
	return s.putJSON(s.bucket(booksBucket), stored.ID, stored)
}

func (s *boltStore) DeleteBook(_ context.Context, id string) error {
	b := s.bucket(booksBucket)
	if b.Get([]byte(id)) == nil {
		return errs.ErrNotFound
	}
	return b.Delete([]byte(id))
}

func (s *boltStore) SetAvailability(ctx context.Context, id string, available bool) error {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}
	book.Available = available
	return s.putJSON(s.bucket(booksBucket), id, book)
}

func (s *boltStore) CreateLoan(_ context.Context, loan model.Loan) (model.Loan, error) {
	loans := s.bucket(loansBucket)
	if loans.Get([]byte(loan.ID)) != nil {
		return model.Loan{}, errors.Wrapf(errs.ErrAlreadyExists, "loan %s", loan.ID)
	}
	active := s.bucket(activeLoansBucket)
	if active.Get([]byte(loan.BookID)) != nil {
		return model.Loan{}, errors.Wrapf(errs.ErrDuplicateActiveLoan, "book %s", loan.BookID)
	}

	loan.Status = model.LoanStatusActive
	loan.ReturnDate = nil
	if err := s.putJSON(loans, loan.ID, loan); err != nil {
		return model.Loan{}, err
	}
	if err := active.Put([]byte(loan.BookID), []byte(loan.ID)); err != nil {
		return model.Loan{}, err
	}
	return loan, nil
}

func (s *boltStore) GetLoan(_ context.Context, id string) (model.Loan, error) {
	var loan model.Loan
	result := s.bucket(loansBucket).Get([]byte(id))
	if result == nil {
		return loan, errs.ErrNotFound
	}
	err := json.Unmarshal(result, &loan)
	return loan, err
}

func (s *boltStore) FindActiveByBook(ctx context.Context, bookID string) (model.Loan, bool, error) {
	loanID := s.bucket(activeLoansBucket).Get([]byte(bookID))
	if loanID == nil {
		return model.Loan{}, false, nil
	}
	loan, err := s.GetLoan(ctx, string(loanID))
	if err != nil {
		return model.Loan{}, false, errors.Wrapf(err, "active index points at loan %s", loanID)
	}
	return loan, true, nil
}

func (s *boltStore) MarkReturned(ctx context.Context, id string, returnDate model.Date) (model.Loan, error) {
	loan, err := s.GetLoan(ctx, id)
	if err != nil {
		return model.Loan{}, err
	}
	if !loan.IsActive() {
		return model.Loan{}, errors.Wrapf(errs.ErrInvalidTransition, "loan %s is not active", id)
	}
	if returnDate.Before(loan.LoanDate.Time) {
		return model.Loan{}, errors.Wrapf(errs.ErrInvalidTransition, "return date %s before loan date %s", returnDate, loan.LoanDate)
	}

	loan.Status = model.LoanStatusReturned
	loan.ReturnDate = &returnDate
	if err := s.putJSON(s.bucket(loansBucket), id, loan); err != nil {
		return model.Loan{}, err
	}
	if err := s.bucket(activeLoansBucket).Delete([]byte(loan.BookID)); err != nil {
		return model.Loan{}, err
	}
	return loan, nil
}

func (s *boltStore) DeleteLoan(ctx context.Context, id string) error {
	loan, err := s.GetLoan(ctx, id)
	if err != nil {
		return err
	}
	if loan.IsActive() {
		if err := s.bucket(activeLoansBucket).Delete([]byte(loan.BookID)); err != nil {
			return err
		}
	}
	return s.bucket(loansBucket).Delete([]byte(id))
}

func (s *boltStore) ListLoans(_ context.Context, status model.LoanStatus) ([]model.Loan, error) {
	return s.listLoans(func(loan model.Loan) bool {
		return status == "" || loan.Status == status
	})
}

func (s *boltStore) ListLoansByMember(_ context.Context, memberID string) ([]model.Loan, error) {
	return s.listLoans(func(loan model.Loan) bool { return loan.MemberID == memberID })
}

func (s *boltStore) listLoans(keep func(model.Loan) bool) ([]model.Loan, error) {
	c := s.bucket(loansBucket).Cursor()

	loans := []model.Loan{}
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var loan model.Loan
		if err := json.Unmarshal(v, &loan); err != nil {
			return nil, err
		}
		if keep(loan) {
			loans = append(loans, loan)
		}
	}
	sort.SliceStable(loans, func(i, j int) bool {
		if !loans[i].LoanDate.Equal(loans[j].LoanDate.Time) {
			return loans[i].LoanDate.Before(loans[j].LoanDate.Time)
		}
		return loans[i].ID < loans[j].ID
	})
	return loans, nil
}

func (s *boltStore) putJSON(b *bolt.Bucket, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(id), data)
}

type boltResourceStore[T any] struct {
	client *bolt.DB
	bucket []byte
}

func NewBoltResourceStore[T any](client *bolt.DB, kind string) *boltResourceStore[T] {
	return &boltResourceStore[T]{
		client: client,
		bucket: []byte(kind),
	}
}

func (r *boltResourceStore[T]) Get(_ context.Context, id string) (T, error) {
	var rec T
	err := r.client.View(func(tx *bolt.Tx) error {
		result := tx.Bucket(r.bucket).Get([]byte(id))
		if result == nil {
			return errs.ErrNotFound
		}
		return json.Unmarshal(result, &rec)
	})
	return rec, err
}

func (r *boltResourceStore[T]) List(_ context.Context) ([]T, error) {
	items := []T{}
	err := r.client.View(func(tx *bolt.Tx) error {
		return tx.Bucket(r.bucket).ForEach(func(_, v []byte) error {
			var rec T
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			items = append(items, rec)
			return nil
		})
	})
	return items, err
}

func (r *boltResourceStore[T]) Create(_ context.Context, id string, rec T) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if b.Get([]byte(id)) != nil {
			return errors.Wrapf(errs.ErrAlreadyExists, "%s %s", r.bucket, id)
		}
		return b.Put([]byte(id), data)
	})
}

func (r *boltResourceStore[T]) Put(_ context.Context, id string, rec T) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(r.bucket).Put([]byte(id), data)
	})
}

func (r *boltResourceStore[T]) Delete(_ context.Context, id string) error {
	return r.client.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if b.Get([]byte(id)) == nil {
			return errs.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}
