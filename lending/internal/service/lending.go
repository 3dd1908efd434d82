package service

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/lending-service/lending/internal/errs"
	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/lending/internal/repository"
	"github.com/Astemirdum/lending-service/pkg/kafka"
)

// CreateLoan lends a book to a member. The flag flip and the new loan are
// committed together or not at all.
func (s *Service) CreateLoan(ctx context.Context, req model.CreateLoanRequest) (model.Loan, error) {
	if _, err := s.members.Get(ctx, req.MemberID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Loan{}, errors.Wrapf(errs.ErrUnknownMember, "member %s", req.MemberID)
		}
		return model.Loan{}, err
	}

	unlock, err := s.locker.Lock(ctx, req.BookID)
	if err != nil {
		return model.Loan{}, errors.Wrap(err, "lock book")
	}
	defer unlock()

	var loan model.Loan
	err = s.repo.Update(ctx, func(ctx context.Context, st repository.Store) error {
		book, err := st.GetBook(ctx, req.BookID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errors.Wrapf(errs.ErrUnknownBook, "book %s", req.BookID)
			}
			return err
		}
		if !book.Available {
			return errors.Wrapf(errs.ErrBookNotAvailable, "book %s", book.ID)
		}
		if err := st.SetAvailability(ctx, book.ID, false); err != nil {
			return err
		}
		loan, err = st.CreateLoan(ctx, model.Loan{
			ID:       s.ids.NewID(),
			MemberID: req.MemberID,
			BookID:   book.ID,
			LoanDate: s.today(),
			Status:   model.LoanStatusActive,
		})
		return err
	})
	if err != nil {
		s.logFailure("CreateLoan", err, zap.String("book", req.BookID), zap.String("member", req.MemberID))
		return model.Loan{}, err
	}

	s.log.Debug("loan created", zap.String("loan", loan.ID), zap.String("book", loan.BookID))
	s.publish(kafka.EventLoanCreated, loan)
	return loan, nil
}

// ReturnLoan closes an active loan and frees its book.
func (s *Service) ReturnLoan(ctx context.Context, loanID string) (model.Loan, error) {
	current, err := s.findLoan(ctx, loanID)
	if err != nil {
		return model.Loan{}, err
	}

	unlock, err := s.locker.Lock(ctx, current.BookID)
	if err != nil {
		return model.Loan{}, errors.Wrap(err, "lock book")
	}
	defer unlock()

	var loan model.Loan
	err = s.repo.Update(ctx, func(ctx context.Context, st repository.Store) error {
		stored, err := st.GetLoan(ctx, loanID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errors.Wrapf(errs.ErrUnknownLoan, "loan %s", loanID)
			}
			return err
		}
		if !stored.IsActive() {
			return errors.Wrapf(errs.ErrAlreadyReturned, "loan %s", loanID)
		}

		returnDate := s.today()
		if returnDate.Before(stored.LoanDate.Time) {
			returnDate = stored.LoanDate
		}
		loan, err = st.MarkReturned(ctx, loanID, returnDate)
		if err != nil {
			return err
		}
		return s.releaseBook(ctx, st, loan.BookID)
	})
	if err != nil {
		s.logFailure("ReturnLoan", err, zap.String("loan", loanID))
		return model.Loan{}, err
	}

	s.log.Debug("loan returned", zap.String("loan", loan.ID), zap.String("book", loan.BookID))
	s.publish(kafka.EventLoanReturned, loan)
	return loan, nil
}

// DeleteLoan removes a loan record. Deleting an active loan frees its book
// in the same transaction.
func (s *Service) DeleteLoan(ctx context.Context, loanID string) error {
	current, err := s.findLoan(ctx, loanID)
	if err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, current.BookID)
	if err != nil {
		return errors.Wrap(err, "lock book")
	}
	defer unlock()

	var deleted model.Loan
	err = s.repo.Update(ctx, func(ctx context.Context, st repository.Store) error {
		stored, err := st.GetLoan(ctx, loanID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errors.Wrapf(errs.ErrUnknownLoan, "loan %s", loanID)
			}
			return err
		}
		if err := st.DeleteLoan(ctx, loanID); err != nil {
			return err
		}
		deleted = stored
		if !stored.IsActive() {
			return nil
		}
		return s.releaseBook(ctx, st, stored.BookID)
	})
	if err != nil {
		s.logFailure("DeleteLoan", err, zap.String("loan", loanID))
		return err
	}

	s.log.Debug("loan deleted", zap.String("loan", deleted.ID), zap.String("status", string(deleted.Status)))
	s.publish(kafka.EventLoanDeleted, deleted)
	return nil
}

// releaseBook marks a book available again. A book removed from the
// registry has no flag left to restore.
func (s *Service) releaseBook(ctx context.Context, st repository.Store, bookID string) error {
	err := st.SetAvailability(ctx, bookID, true)
	if errors.Is(err, errs.ErrNotFound) {
		s.log.Warn("loan references a missing book", zap.String("book", bookID))
		return nil
	}
	return err
}

func (s *Service) findLoan(ctx context.Context, loanID string) (model.Loan, error) {
	var loan model.Loan
	err := s.repo.View(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		loan, err = st.GetLoan(ctx, loanID)
		return err
	})
	if errors.Is(err, errs.ErrNotFound) {
		return model.Loan{}, errors.Wrapf(errs.ErrUnknownLoan, "loan %s", loanID)
	}
	return loan, err
}

func (s *Service) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, errs.ErrInconsistentState) {
		s.log.Error(op, fields...)
		return
	}
	s.log.Debug(op, fields...)
}

// GetLoan returns a loan with its member and book. Either of them may have
// been deleted since and is then left nil.
func (s *Service) GetLoan(ctx context.Context, loanID string) (model.LoanDetails, error) {
	loan, err := s.findLoan(ctx, loanID)
	if err != nil {
		return model.LoanDetails{}, err
	}
	details := model.LoanDetails{Loan: loan}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		member, err := s.members.Get(gCtx, loan.MemberID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return nil
			}
			return err
		}
		details.Member = &member
		return nil
	})
	g.Go(func() error {
		return s.repo.View(gCtx, func(ctx context.Context, st repository.Store) error {
			book, err := st.GetBook(ctx, loan.BookID)
			if err != nil {
				if errors.Is(err, errs.ErrNotFound) {
					return nil
				}
				return err
			}
			details.Book = &book
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return model.LoanDetails{}, err
	}
	return details, nil
}

func (s *Service) ListLoans(ctx context.Context) ([]model.Loan, error) {
	return s.listLoans(ctx, "")
}

func (s *Service) ListActiveLoans(ctx context.Context) ([]model.Loan, error) {
	return s.listLoans(ctx, model.LoanStatusActive)
}

// ListLoanHistory returns returned loans only; open loans are served by ListActiveLoans.
func (s *Service) ListLoanHistory(ctx context.Context) ([]model.Loan, error) {
	return s.listLoans(ctx, model.LoanStatusReturned)
}

func (s *Service) listLoans(ctx context.Context, status model.LoanStatus) ([]model.Loan, error) {
	var loans []model.Loan
	err := s.repo.View(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		loans, err = st.ListLoans(ctx, status)
		return err
	})
	return loans, err
}

// ListMemberLoans returns every loan a member has taken, oldest first.
func (s *Service) ListMemberLoans(ctx context.Context, memberID string) ([]model.Loan, error) {
	if _, err := s.members.Get(ctx, memberID); err != nil {
		return nil, err
	}
	var loans []model.Loan
	err := s.repo.View(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		loans, err = st.ListLoansByMember(ctx, memberID)
		return err
	})
	return loans, err
}
