package model

import (
	"strings"
	"time"
)

// Date is a calendar date, serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), "\"")
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	date, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return err
	}
	d.Time = date
	return nil
}

type Book struct {
	ID        string `json:"id" db:"id"`
	Title     string `json:"title" db:"title"`
	Author    string `json:"author" db:"author"`
	ISBN      string `json:"isbn" db:"isbn"`
	Available bool   `json:"available" db:"available"`
}

// BookRequest is the CRUD payload; Available is only compared, never applied.
type BookRequest struct {
	ID        string `json:"id"`
	Title     string `json:"title" validate:"required"`
	Author    string `json:"author" validate:"required"`
	ISBN      string `json:"isbn"`
	Available *bool  `json:"available,omitempty"`
}

type Member struct {
	ID               string `json:"id"`
	Name             string `json:"name" validate:"required"`
	Surname          string `json:"surname" validate:"required"`
	Email            string `json:"email" validate:"required,email"`
	Phone            string `json:"phone"`
	RegistrationDate Date   `json:"registrationDate"`
}

type Student struct {
	ID      string `json:"id"`
	Name    string `json:"name" validate:"required"`
	Surname string `json:"surname" validate:"required"`
	Age     int    `json:"age" validate:"gte=0"`
}

type Employee struct {
	ID       string `json:"id"`
	Name     string `json:"name" validate:"required"`
	Surname  string `json:"surname" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Position string `json:"position"`
	Salary   string `json:"salary"`
	HireDate Date   `json:"hireDate"`
}

type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "active"
	LoanStatusReturned LoanStatus = "returned"
)

type Loan struct {
	ID         string     `json:"id"`
	MemberID   string     `json:"memberId"`
	BookID     string     `json:"bookId"`
	LoanDate   Date       `json:"loanDate"`
	ReturnDate *Date      `json:"returnDate"`
	Status     LoanStatus `json:"status"`
}

func (l Loan) IsActive() bool {
	return l.Status == LoanStatusActive
}

type CreateLoanRequest struct {
	MemberID string `json:"memberId" validate:"required"`
	BookID   string `json:"bookId" validate:"required"`
}

// LoanDetails is a loan with the records it references; either may be gone by now.
type LoanDetails struct {
	Loan   Loan    `json:"loan"`
	Member *Member `json:"member"`
	Book   *Book   `json:"book"`
}

type AvailabilityViolation struct {
	BookID        string   `json:"bookId"`
	Available     bool     `json:"available"`
	Expected      bool     `json:"expected"`
	ActiveLoanIDs []string `json:"activeLoanIds"`
}

type ConsistencyReport struct {
	CheckedBooks int                     `json:"checkedBooks"`
	Violations   []AvailabilityViolation `json:"violations"`
}

func (r ConsistencyReport) Consistent() bool {
	return len(r.Violations) == 0
}
