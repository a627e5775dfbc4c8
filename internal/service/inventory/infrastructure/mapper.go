// internal/service/inventory/infrastructure/mapper.go
package infrastructure

import (
	"stockhold/internal/service/inventory/domain"
)

// ToDomainStockRecord 将数据库模型转换为领域模型
func ToDomainStockRecord(m *StockRecordModel, reservations []StockReservationModel) *domain.StockRecord {
	if m == nil {
		return nil
	}
	record := &domain.StockRecord{
		ProductID:         m.ProductID,
		TotalQuantity:     m.TotalQuantity,
		ReservedQuantity:  m.ReservedQuantity,
		LowStockThreshold: m.LowStockThreshold,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	for i := range reservations {
		record.Reservations = append(record.Reservations, ToDomainReservation(&reservations[i]))
	}
	return record
}

// ToDomainReservation 将数据库模型转换为领域模型
func ToDomainReservation(m *StockReservationModel) domain.Reservation {
	return domain.Reservation{
		ID:         m.ReservationID,
		SessionID:  m.SessionID,
		Quantity:   m.Quantity,
		ReservedAt: m.ReservedAt,
		ExpiresAt:  m.ExpiresAt,
	}
}
