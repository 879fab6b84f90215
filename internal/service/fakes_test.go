package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-platform/internal/models"
	"github.com/ignatzorin/escrow-platform/internal/repository"
)

// fakeEscrowRepo — потокобезопасное хранилище сделок в памяти. Возвращает и
// принимает копии, как это делает настоящий репозиторий поверх базы.
type fakeEscrowRepo struct {
	mu      sync.Mutex
	seq     int64
	escrows map[int64]models.Escrow
}

func newFakeEscrowRepo() *fakeEscrowRepo {
	return &fakeEscrowRepo{escrows: make(map[int64]models.Escrow)}
}

func (r *fakeEscrowRepo) Create(ctx context.Context, escrow *models.Escrow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	escrow.ID = r.seq
	r.escrows[escrow.ID] = *escrow
	return nil
}

func (r *fakeEscrowRepo) CreateBatch(ctx context.Context, escrows []*models.Escrow) error {
	for _, escrow := range escrows {
		if err := r.Create(ctx, escrow); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeEscrowRepo) GetByID(ctx context.Context, id int64) (*models.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	escrow, ok := r.escrows[id]
	if !ok {
		return nil, repository.ErrEscrowNotFound
	}
	return &escrow, nil
}

func (r *fakeEscrowRepo) Update(ctx context.Context, escrow *models.Escrow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.escrows[escrow.ID]; !ok {
		return repository.ErrEscrowNotFound
	}
	r.escrows[escrow.ID] = *escrow
	return nil
}

func (r *fakeEscrowRepo) ListIDs(ctx context.Context, start, limit int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.escrows))
	for id := range r.escrows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if start > int64(len(ids)) {
		return []int64{}, nil
	}
	ids = ids[start:]
	if int64(len(ids)) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *fakeEscrowRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.escrows)), nil
}

// fakeConfigRepo хранит единственную строку конфигурации.
type fakeConfigRepo struct {
	mu  sync.Mutex
	cfg *models.FeeConfig
}

func newFakeConfigRepo() *fakeConfigRepo {
	return &fakeConfigRepo{}
}

func (r *fakeConfigRepo) Get(ctx context.Context) (*models.FeeConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg == nil {
		return &models.FeeConfig{ID: 1}, nil
	}
	cfg := *r.cfg
	return &cfg, nil
}

func (r *fakeConfigRepo) Save(ctx context.Context, cfg *models.FeeConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := *cfg
	r.cfg = &saved
	return nil
}

// fakeRefundRepo — хранилище заявок и истории возвратов. Complete применяет
// изменения заявки, сделки и истории вместе, как транзакция настоящего
// репозитория.
type fakeRefundRepo struct {
	mu       sync.Mutex
	seq      int64
	hseq     int64
	requests map[int64]models.RefundRequest
	history  []models.RefundHistoryEntry
	escrows  *fakeEscrowRepo
}

func newFakeRefundRepo(escrows *fakeEscrowRepo) *fakeRefundRepo {
	return &fakeRefundRepo{
		requests: make(map[int64]models.RefundRequest),
		escrows:  escrows,
	}
}

func (r *fakeRefundRepo) Create(ctx context.Context, req *models.RefundRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	req.ID = r.seq
	r.requests[req.ID] = *req
	return nil
}

func (r *fakeRefundRepo) GetByID(ctx context.Context, id int64) (*models.RefundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrRefundRequestNotFound
	}
	return &req, nil
}

func (r *fakeRefundRepo) Update(ctx context.Context, req *models.RefundRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; !ok {
		return repository.ErrRefundRequestNotFound
	}
	r.requests[req.ID] = *req
	return nil
}

func (r *fakeRefundRepo) ListByEscrow(ctx context.Context, escrowID int64) ([]models.RefundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RefundRequest
	for _, req := range r.requests {
		if req.EscrowID == escrowID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRefundRepo) Complete(ctx context.Context, req *models.RefundRequest, escrow *models.Escrow, entry *models.RefundHistoryEntry) error {
	if err := r.escrows.Update(ctx, escrow); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; !ok {
		return repository.ErrRefundRequestNotFound
	}
	r.requests[req.ID] = *req
	r.hseq++
	entry.ID = r.hseq
	r.history = append(r.history, *entry)
	return nil
}

func (r *fakeRefundRepo) HistoryByEscrow(ctx context.Context, escrowID int64) ([]models.RefundHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RefundHistoryEntry
	for _, entry := range r.history {
		if entry.EscrowID == escrowID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *fakeRefundRepo) HistoryAll(ctx context.Context, limit, offset int64) ([]models.RefundHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset > int64(len(r.history)) {
		return nil, nil
	}
	out := r.history[offset:]
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return append([]models.RefundHistoryEntry(nil), out...), nil
}

// recordedEvent — опубликованное доменное событие.
type recordedEvent struct {
	event      string
	recipients []uuid.UUID
}

// fakeEvents собирает опубликованные события.
type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) Publish(ctx context.Context, event string, recipients []uuid.UUID, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{event: event, recipients: recipients})
}

func (f *fakeEvents) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.event)
	}
	return out
}
