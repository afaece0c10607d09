package inbound_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/cte-api/internal/application/inbound"
	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/domain/repository"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz"
)

// memStore implementa os três repositórios da importação em memória.
type memStore struct {
	mu       sync.Mutex
	docs     map[string]*entity.InboundDocument
	partners map[string]*entity.BusinessPartner
	products map[string]*entity.Product
	seq      int
	// hideFromPrecheck simula outra importação gravando entre a checagem e o insert
	hideFromPrecheck map[string]bool
	failPartner      error
}

func newMemStore() *memStore {
	return &memStore{
		docs:             map[string]*entity.InboundDocument{},
		partners:         map[string]*entity.BusinessPartner{},
		products:         map[string]*entity.Product{},
		hideFromPrecheck: map[string]bool{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// docKey documentos são únicos por empresa.
func docKey(company, key string) string { return company + "/" + key }

func (s *memStore) ExistsByAccessKey(_ context.Context, company, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hideFromPrecheck[key] {
		return false, nil
	}
	_, ok := s.docs[docKey(company, key)]
	return ok, nil
}

func (s *memStore) Create(_ context.Context, doc *entity.InboundDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := docKey(doc.CompanyID, doc.AccessKey)
	if _, ok := s.docs[k]; ok {
		return domain.ErrDuplicate
	}
	s.docs[k] = doc
	return nil
}

func (s *memStore) UpsertByTaxID(_ context.Context, p *entity.BusinessPartner) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPartner != nil {
		return false, s.failPartner
	}
	k := p.CompanyID + "/" + p.TaxID
	if existing, ok := s.partners[k]; ok {
		p.ID = existing.ID
		return false, nil
	}
	p.ID = s.nextID("partner")
	cp := *p
	s.partners[k] = &cp
	return true, nil
}

func (s *memStore) UpsertByCode(_ context.Context, p *entity.Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := p.CompanyID + "/" + p.PartnerID + "/" + p.Code
	if existing, ok := s.products[k]; ok {
		p.ID = existing.ID
		return false, nil
	}
	p.ID = s.nextID("product")
	cp := *p
	s.products[k] = &cp
	return true, nil
}

// RunInbound sem transação real: o teste só observa o resultado final.
func (s *memStore) RunInbound(_ context.Context, fn func(repository.InboundDocumentRepository, repository.BusinessPartnerRepository, repository.ProductRepository) error) error {
	return fn(s, s, s)
}

var _ inbound.TxRunner = (*memStore)(nil)

// memBranches repositório de filiais.
type memBranches struct {
	mu       sync.Mutex
	branches map[string]*entity.Branch
	saved    []string
}

func (b *memBranches) GetByID(_ context.Context, id string) (*entity.Branch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	br, ok := b.branches[id]
	if !ok {
		return nil, nil
	}
	cp := *br
	return &cp, nil
}

func (b *memBranches) UpdateLastNSU(_ context.Context, id, nsu string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.branches[id].LastNSU = nsu
	b.branches[id].LastSyncAt = &at
	b.saved = append(b.saved, nsu)
	return nil
}

// pagedGateway devolve páginas pré-programadas e registra os NSUs pedidos.
type pagedGateway struct {
	pages     []*sefaz.DistributionResult
	errAt     int // índice da chamada que falha; -1 = nunca
	requested []string
}

func (g *pagedGateway) Distribution(_ context.Context, req sefaz.DistributionRequest) (*sefaz.DistributionResult, error) {
	call := len(g.requested)
	g.requested = append(g.requested, req.LastNSU)
	if call == g.errAt {
		return nil, &domain.GatewayError{Op: "distribuicao", Transient: true, Err: fmt.Errorf("timeout")}
	}
	if call >= len(g.pages) {
		return &sefaz.DistributionResult{StatusCode: 137, LastNSU: req.LastNSU, MaxNSU: req.LastNSU}, nil
	}
	return g.pages[call], nil
}

type staticProvider struct{ gw inbound.DistributionGateway }

func (p staticProvider) ForBranch(context.Context, *entity.Branch) (inbound.DistributionGateway, error) {
	return p.gw, nil
}

// memLocker trava em memória com contagem de liberações.
type memLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released int
}

func (l *memLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released++
	}, true, nil
}
