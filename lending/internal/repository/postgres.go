package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/lending-service/lending/internal/errs"
	"github.com/Astemirdum/lending-service/lending/internal/model"
)

const (
	booksTableName   = `books`
	loansTableName   = `loans`
	recordsTableName = `records`

	activeLoanIndex = `loans_active_book_uidx`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	bookColumns = []string{"id", "title", "author", "isbn", "available"}
	loanColumns = []string{"id", "member_id", "book_id", "loan_date", "return_date", "status"}
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// beginner starts transactions; *pgxpool.Pool satisfies it.
type beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
	db   beginner
	log  *zap.Logger
}

func NewPostgresRepository(db *pgxpool.Pool, log *zap.Logger) *postgresRepository {
	return &postgresRepository{
		pool: db,
		db:   db,
		log:  log.Named("repo"),
	}
}

func (r *postgresRepository) View(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return errors.Wrap(err, "begin view")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, &postgresStore{db: tx, log: r.log}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *postgresRepository) Update(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin update")
	}

	if err := fn(ctx, &postgresStore{db: tx, log: r.log, forUpdate: true}); err != nil {
		// rollback must not inherit a canceled request context
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.log.Error("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
			return errors.Wrapf(errs.ErrInconsistentState, "rollback: %v, cause: %v", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func (r *postgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type postgresStore struct {
	db        querier
	log       *zap.Logger
	forUpdate bool
}

func (s *postgresStore) GetBook(ctx context.Context, id string) (model.Book, error) {
	q := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"id": id})
	if s.forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.Book{}, err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return model.Book{}, err
	}
	defer rows.Close()

	book, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Book])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (s *postgresStore) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.listBooks(ctx, qb.Select(bookColumns...).From(booksTableName))
}

func (s *postgresStore) ListBooksByAvailability(ctx context.Context, available bool) ([]model.Book, error) {
	return s.listBooks(ctx, qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"available": available}))
}

func (s *postgresStore) listBooks(ctx context.Context, q sq.SelectBuilder) ([]model.Book, error) {
	query, args, err := q.OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}
	s.log.Debug("listBooks", zap.String("query", query), zap.Any("args", args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Book])
	if err != nil {
		return nil, errors.Wrap(err, "pgx.CollectRows")
	}
	return books, nil
}

func (s *postgresStore) CreateBook(ctx context.Context, book model.Book) error {
	q := `insert into books (id, title, author, isbn, available)
	values (@id, @title, @author, @isbn, @available)`
	args := pgx.NamedArgs{
		"id":        book.ID,
		"title":     book.Title,
		"author":    book.Author,
		"isbn":      book.ISBN,
		"available": book.Available,
	}
	if _, err := s.db.Exec(ctx, q, args); err != nil {
		if isUniqueViolation(err, "") {
			return errors.Wrapf(errs.ErrAlreadyExists, "book %s", book.ID)
		}
		return err
	}
	return nil
}

func (s *postgresStore) UpdateBook(ctx context.Context, book model.Book) error {
	q := `update books
	set title = @title, author = @author, isbn = @isbn
	where id = @id`
	args := pgx.NamedArgs{
		"id":     book.ID,
		"title":  book.Title,
		"author": book.Author,
		"isbn":   book.ISBN,
	}
	tag, err := s.db.Exec(ctx, q, args)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *postgresStore) DeleteBook(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `delete from books where id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *postgresStore) SetAvailability(ctx context.Context, id string, available bool) error {
	q := `update books set available = @available where id = @id`
	tag, err := s.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "available": available})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

type loanRow struct {
	ID         string     `db:"id"`
	MemberID   string     `db:"member_id"`
	BookID     string     `db:"book_id"`
	LoanDate   time.Time  `db:"loan_date"`
	ReturnDate *time.Time `db:"return_date"`
	Status     string     `db:"status"`
}

func (r loanRow) toModel() model.Loan {
	loan := model.Loan{
		ID:       r.ID,
		MemberID: r.MemberID,
		BookID:   r.BookID,
		LoanDate: model.NewDate(r.LoanDate),
		Status:   model.LoanStatus(r.Status),
	}
	if r.ReturnDate != nil {
		d := model.NewDate(*r.ReturnDate)
		loan.ReturnDate = &d
	}
	return loan
}

func (s *postgresStore) CreateLoan(ctx context.Context, loan model.Loan) (model.Loan, error) {
	q, args, err := qb.Insert(loansTableName).
		Columns("id", "member_id", "book_id", "loan_date", "return_date", "status").
		Values(loan.ID, loan.MemberID, loan.BookID, loan.LoanDate.Time, nil, model.LoanStatusActive).
		Suffix("returning " + strings.Join(loanColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Loan{}, err
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return model.Loan{}, err
	}
	defer rows.Close()

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[loanRow])
	if err != nil {
		switch {
		case isUniqueViolation(err, activeLoanIndex):
			return model.Loan{}, errors.Wrapf(errs.ErrDuplicateActiveLoan, "book %s", loan.BookID)
		case isUniqueViolation(err, ""):
			return model.Loan{}, errors.Wrapf(errs.ErrAlreadyExists, "loan %s", loan.ID)
		}
		s.log.Error("CreateLoan", zap.String("q", q), zap.Any("args", args))
		return model.Loan{}, err
	}
	return row.toModel(), nil
}

func (s *postgresStore) GetLoan(ctx context.Context, id string) (model.Loan, error) {
	return s.getLoan(ctx, sq.Eq{"id": id})
}

func (s *postgresStore) FindActiveByBook(ctx context.Context, bookID string) (model.Loan, bool, error) {
	loan, err := s.getLoan(ctx, sq.Eq{"book_id": bookID, "status": model.LoanStatusActive})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Loan{}, false, nil
		}
		return model.Loan{}, false, err
	}
	return loan, true, nil
}

func (s *postgresStore) getLoan(ctx context.Context, where sq.Eq) (model.Loan, error) {
	q := qb.Select(loanColumns...).
		From(loansTableName).
		Where(where).
		Limit(1)
	if s.forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.Loan{}, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return model.Loan{}, err
	}
	defer rows.Close()

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[loanRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Loan{}, errs.ErrNotFound
		}
		return model.Loan{}, err
	}
	return row.toModel(), nil
}

func (s *postgresStore) MarkReturned(ctx context.Context, id string, returnDate model.Date) (model.Loan, error) {
	q := `update loans
	set status = @returned, return_date = @return_date
	where id = @id and status = @active
	returning ` + strings.Join(loanColumns, ", ")
	args := pgx.NamedArgs{
		"id":          id,
		"return_date": returnDate.Time,
		"returned":    model.LoanStatusReturned,
		"active":      model.LoanStatusActive,
	}
	rows, err := s.db.Query(ctx, q, args)
	if err != nil {
		return model.Loan{}, err
	}
	defer rows.Close()

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[loanRow])
	if err == nil {
		return row.toModel(), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Loan{}, err
	}
	if _, err := s.GetLoan(ctx, id); err != nil {
		return model.Loan{}, err
	}
	return model.Loan{}, errors.Wrapf(errs.ErrInvalidTransition, "loan %s is not active", id)
}

func (s *postgresStore) DeleteLoan(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `delete from loans where id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *postgresStore) ListLoans(ctx context.Context, status model.LoanStatus) ([]model.Loan, error) {
	q := qb.Select(loanColumns...).From(loansTableName)
	if status != "" {
		q = q.Where(sq.Eq{"status": status})
	}
	return s.listLoans(ctx, q)
}

func (s *postgresStore) ListLoansByMember(ctx context.Context, memberID string) ([]model.Loan, error) {
	return s.listLoans(ctx, qb.Select(loanColumns...).
		From(loansTableName).
		Where(sq.Eq{"member_id": memberID}))
}

func (s *postgresStore) listLoans(ctx context.Context, q sq.SelectBuilder) ([]model.Loan, error) {
	query, args, err := q.OrderBy("loan_date", "id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loanRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[loanRow])
	if err != nil {
		return nil, errors.Wrap(err, "pgx.CollectRows")
	}
	loans := make([]model.Loan, 0, len(loanRows))
	for _, row := range loanRows {
		loans = append(loans, row.toModel())
	}
	return loans, nil
}

type postgresResourceStore[T any] struct {
	db   *pgxpool.Pool
	kind string
	log  *zap.Logger
}

func NewPostgresResourceStore[T any](db *pgxpool.Pool, kind string, log *zap.Logger) *postgresResourceStore[T] {
	return &postgresResourceStore[T]{
		db:   db,
		kind: kind,
		log:  log.Named("repo").Named(kind),
	}
}

func (r *postgresResourceStore[T]) Get(ctx context.Context, id string) (T, error) {
	var rec T
	query, args, err := qb.Select("body").
		From(recordsTableName).
		Where(sq.Eq{"kind": r.kind, "id": id}).
		ToSql()
	if err != nil {
		return rec, err
	}
	var body []byte
	if err := r.db.QueryRow(ctx, query, args...).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, errs.ErrNotFound
		}
		return rec, err
	}
	err = json.Unmarshal(body, &rec)
	return rec, err
}

func (r *postgresResourceStore[T]) List(ctx context.Context) ([]T, error) {
	query, args, err := qb.Select("body").
		From(recordsTableName).
		Where(sq.Eq{"kind": r.kind}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, errors.Wrap(err, "pgx.CollectRows")
	}
	items := make([]T, 0, len(bodies))
	for _, body := range bodies {
		var rec T
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, nil
}

func (r *postgresResourceStore[T]) Create(ctx context.Context, id string, rec T) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	q := `insert into records (kind, id, body) values (@kind, @id, @body)
	on conflict (kind, id) do nothing`
	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"kind": r.kind,
		"id":   id,
		"body": body,
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errs.ErrAlreadyExists, "%s %s", r.kind, id)
	}
	return nil
}

func (r *postgresResourceStore[T]) Put(ctx context.Context, id string, rec T) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	q := `insert into records (kind, id, body) values (@kind, @id, @body)
	on conflict (kind, id) do update set body = excluded.body, updated_at = now()`
	_, err = r.db.Exec(ctx, q, pgx.NamedArgs{
		"kind": r.kind,
		"id":   id,
		"body": body,
	})
	return err
}

func (r *postgresResourceStore[T]) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `delete from records where kind = @kind and id = @id`,
		pgx.NamedArgs{"kind": r.kind, "id": id})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// isUniqueViolation reports a unique_violation, optionally only for the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
