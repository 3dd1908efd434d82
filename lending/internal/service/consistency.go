package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/lending/internal/repository"
)

// CheckConsistency compares every book's flag with the ledger in one snapshot.
func (s *Service) CheckConsistency(ctx context.Context) (model.ConsistencyReport, error) {
	var report model.ConsistencyReport
	err := s.repo.View(ctx, func(ctx context.Context, st repository.Store) error {
		books, err := st.ListBooks(ctx)
		if err != nil {
			return err
		}
		active, err := st.ListLoans(ctx, model.LoanStatusActive)
		if err != nil {
			return err
		}

		loansByBook := make(map[string][]string, len(active))
		for _, l := range active {
			loansByBook[l.BookID] = append(loansByBook[l.BookID], l.ID)
		}

		report.CheckedBooks = len(books)
		report.Violations = []model.AvailabilityViolation{}
		for _, b := range books {
			ids := loansByBook[b.ID]
			expected := len(ids) == 0
			if b.Available == expected && len(ids) <= 1 {
				continue
			}
			report.Violations = append(report.Violations, model.AvailabilityViolation{
				BookID:        b.ID,
				Available:     b.Available,
				Expected:      expected,
				ActiveLoanIDs: ids,
			})
		}
		return nil
	})
	return report, err
}

// RepairConsistency rewrites the flag of every book whose flag disagrees
// with the ledger and returns the books it changed.
func (s *Service) RepairConsistency(ctx context.Context) ([]model.Book, error) {
	report, err := s.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}

	repaired := []model.Book{}
	for _, v := range report.Violations {
		book, changed, err := s.repairBook(ctx, v.BookID)
		if err != nil {
			return repaired, err
		}
		if changed {
			s.log.Info("availability repaired", zap.String("book", book.ID), zap.Bool("available", book.Available))
			repaired = append(repaired, book)
		}
	}
	return repaired, nil
}

func (s *Service) repairBook(ctx context.Context, bookID string) (model.Book, bool, error) {
	unlock, err := s.locker.Lock(ctx, bookID)
	if err != nil {
		return model.Book{}, false, err
	}
	defer unlock()

	var (
		book    model.Book
		changed bool
	)
	err = s.repo.Update(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		book, err = st.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		_, onLoan, err := st.FindActiveByBook(ctx, bookID)
		if err != nil {
			return err
		}
		if book.Available == !onLoan {
			return nil
		}
		book.Available = !onLoan
		changed = true
		return st.SetAvailability(ctx, bookID, book.Available)
	})
	return book, changed, err
}
