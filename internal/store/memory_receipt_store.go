package store

import (
	"context"
	"sync"
	"time"

	"github.com/welth-app/receiptflow/internal/domain"
)

type MemoryReceiptStore struct {
	mu        sync.RWMutex
	receipts  map[string]domain.Receipt
	usageLogs []domain.UsageLog
}

func NewMemoryReceiptStore() *MemoryReceiptStore {
	return &MemoryReceiptStore{
		receipts: make(map[string]domain.Receipt),
	}
}

func (s *MemoryReceiptStore) Create(_ context.Context, receipt domain.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[receipt.ID] = receipt
	return nil
}

func (s *MemoryReceiptStore) Get(_ context.Context, id string) (domain.Receipt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipt, ok := s.receipts[id]
	return receipt, ok, nil
}

func (s *MemoryReceiptStore) UpdateStatus(_ context.Context, id, status string) (domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, ok := s.receipts[id]
	if !ok {
		return domain.Receipt{}, ErrReceiptNotFound
	}

	receipt.Status = status
	receipt.UpdatedAt = time.Now().UTC()
	s.receipts[id] = receipt
	return receipt, nil
}

func (s *MemoryReceiptStore) SaveOutput(_ context.Context, id string, output domain.NormalizedOutput) (domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, ok := s.receipts[id]
	if !ok {
		return domain.Receipt{}, ErrReceiptNotFound
	}

	saved := output
	receipt.Output = &saved
	receipt.UpdatedAt = time.Now().UTC()
	s.receipts[id] = receipt
	return receipt, nil
}

func (s *MemoryReceiptStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usageLogs = append(s.usageLogs, usage)
	return nil
}

// UsageLogs returns a copy of every recorded usage entry.
func (s *MemoryReceiptStore) UsageLogs() []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UsageLog, len(s.usageLogs))
	copy(out, s.usageLogs)
	return out
}
