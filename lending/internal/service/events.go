package service

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/pkg/kafka"
)

// publish runs after commit. A failed publish is logged and never undoes the transition.
func (s *Service) publish(typ kafka.EventType, loan model.Loan) {
	ev := kafka.EventLending{
		ID:         uuid.NewString(),
		Type:       typ,
		LoanID:     loan.ID,
		BookID:     loan.BookID,
		MemberID:   loan.MemberID,
		OccurredAt: s.clock.Now().UTC(),
	}
	if err := s.publisher.Enqueue(kafka.LendingTopic, loan.BookID, ev); err != nil {
		s.log.Warn("publish lending event",
			zap.String("type", string(typ)),
			zap.String("loan", loan.ID),
			zap.Error(err))
	}
}
