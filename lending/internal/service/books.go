package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Astemirdum/lending-service/lending/internal/errs"
	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/lending/internal/repository"
)

func (s *Service) GetBook(ctx context.Context, id string) (model.Book, error) {
	var book model.Book
	err := s.repo.View(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		book, err = st.GetBook(ctx, id)
		return err
	})
	return book, err
}

func (s *Service) ListBooks(ctx context.Context) ([]model.Book, error) {
	var books []model.Book
	err := s.repo.View(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		books, err = st.ListBooks(ctx)
		return err
	})
	return books, err
}

func (s *Service) ListAvailableBooks(ctx context.Context) ([]model.Book, error) {
	return s.listBooksByAvailability(ctx, true)
}

func (s *Service) ListLoanedBooks(ctx context.Context) ([]model.Book, error) {
	return s.listBooksByAvailability(ctx, false)
}

func (s *Service) listBooksByAvailability(ctx context.Context, available bool) ([]model.Book, error) {
	var books []model.Book
	err := s.repo.View(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		books, err = st.ListBooksByAvailability(ctx, available)
		return err
	})
	return books, err
}

// CreateBook registers a new book. New books are always available.
func (s *Service) CreateBook(ctx context.Context, req model.BookRequest) (model.Book, error) {
	book := model.Book{
		ID:        req.ID,
		Title:     req.Title,
		Author:    req.Author,
		ISBN:      req.ISBN,
		Available: true,
	}
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	err := s.repo.Update(ctx, func(ctx context.Context, st repository.Store) error {
		return st.CreateBook(ctx, book)
	})
	if err != nil {
		return model.Book{}, err
	}
	return book, nil
}

// UpdateBook edits the descriptive fields of a book. Asking for a different
// availability than the stored one is refused.
func (s *Service) UpdateBook(ctx context.Context, id string, req model.BookRequest) (model.Book, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return model.Book{}, errors.Wrap(err, "lock book")
	}
	defer unlock()

	var book model.Book
	err = s.repo.Update(ctx, func(ctx context.Context, st repository.Store) error {
		stored, err := st.GetBook(ctx, id)
		if err != nil {
			return err
		}
		if req.Available != nil && *req.Available != stored.Available {
			return errors.Wrapf(errs.ErrInvariantViolation, "book %s available=%t", id, stored.Available)
		}
		book = stored
		book.Title = req.Title
		book.Author = req.Author
		book.ISBN = req.ISBN
		return st.UpdateBook(ctx, book)
	})
	if err != nil {
		return model.Book{}, err
	}
	return book, nil
}

// DeleteBook removes a book that is not on loan. Its loan history is kept.
func (s *Service) DeleteBook(ctx context.Context, id string) error {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return errors.Wrap(err, "lock book")
	}
	defer unlock()

	return s.repo.Update(ctx, func(ctx context.Context, st repository.Store) error {
		if _, err := st.GetBook(ctx, id); err != nil {
			return err
		}
		loan, ok, err := st.FindActiveByBook(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			return errors.Wrapf(errs.ErrInvariantViolation, "book %s is on loan %s", id, loan.ID)
		}
		return st.DeleteBook(ctx, id)
	})
}
