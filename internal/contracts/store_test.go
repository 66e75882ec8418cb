package contracts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/shared"
)

type memStore struct {
	mu        sync.Mutex
	contracts map[int64]Contract
	logs      []shared.ApprovalLog
	nextID    int64
}

func newMemStore(seed ...Contract) *memStore {
	s := &memStore{contracts: map[int64]Contract{}}
	for _, c := range seed {
		if c.Status == "" {
			c.Status = StatusDraft
		}
		s.contracts[c.ID] = c
		if c.ID > s.nextID {
			s.nextID = c.ID
		}
	}
	return s
}

func (s *memStore) List(_ context.Context, f ListFilter) ([]Contract, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Contract
	for _, c := range s.contracts {
		if f.Scope == rbac.ScopeOwn && c.OwnerID != f.UserID && (f.CompanyID == 0 || c.CompanyID != f.CompanyID) {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Title), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (s *memStore) Get(_ context.Context, id int64) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, ErrNotFound
	}
	return c, nil
}

func (s *memStore) Create(_ context.Context, c Contract) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	c.Status = StatusDraft
	c.CreatedAt = time.Now()
	s.contracts[c.ID] = c
	return c, nil
}

func (s *memStore) Update(_ context.Context, c Contract) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[c.ID]; !ok {
		return Contract{}, ErrNotFound
	}
	s.contracts[c.ID] = c
	return c, nil
}

func (s *memStore) Transition(_ context.Context, t Transition) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[t.ContractID]
	if !ok || c.Status != t.From {
		return Contract{}, ErrInvalidTransition
	}
	c.Status = t.To
	if t.To == StatusRejected {
		c.RejectionReason = t.Reason
	}
	s.contracts[c.ID] = c
	s.logs = append(s.logs, shared.ApprovalLog{ContractID: c.ID, ActorID: t.ActorID, Action: t.Action, Note: t.Reason})
	return c, nil
}

func (s *memStore) SetDocument(_ context.Context, id int64, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return ErrNotFound
	}
	c.DocumentURL = url
	s.contracts[id] = c
	return nil
}

func (s *memStore) Log(_ context.Context, entry shared.ApprovalLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *memStore) History(_ context.Context, id int64) ([]shared.ApprovalLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []shared.ApprovalLog
	for _, l := range s.logs {
		if l.ContractID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeEnqueuer struct {
	calls [][2]int64
	err   error
}

func (f *fakeEnqueuer) EnqueueContractGenerate(_ context.Context, contractID, requestedBy int64) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, [2]int64{contractID, requestedBy})
	return nil
}

type memKeys struct {
	seen map[string]bool
}

func (m *memKeys) CheckAndInsert(_ context.Context, key, module string) error {
	if m.seen[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.seen[module+"/"+key] = true
	return nil
}

func (m *memKeys) Delete(_ context.Context, key, module string) error {
	delete(m.seen, module+"/"+key)
	return nil
}

type fakeRenderer struct {
	url string
	err error
}

func (f fakeRenderer) Render(context.Context, Contract) (string, error) {
	return f.url, f.err
}
