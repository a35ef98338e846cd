package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendaflow/crmimport/internal/crm"
)

// memStore is an in-memory crm.Store for pipeline tests. Not concurrency-safe;
// a Run touches it from a single goroutine.
type memStore struct {
	companies []crm.Company
	contacts  []crm.Contact
	stages    []crm.Stage
	sellers   []crm.Seller
	deals     []crm.DealParams

	nextID  int
	dealErr func(p crm.DealParams) error
}

func newMemStore(stages []crm.Stage) *memStore {
	return &memStore{stages: stages}
}

func (s *memStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *memStore) Companies(context.Context) ([]crm.Company, error) { return s.companies, nil }
func (s *memStore) Contacts(context.Context) ([]crm.Contact, error)  { return s.contacts, nil }
func (s *memStore) Stages(context.Context) ([]crm.Stage, error)      { return s.stages, nil }
func (s *memStore) Sellers(context.Context) ([]crm.Seller, error)    { return s.sellers, nil }

func (s *memStore) CreateCompany(_ context.Context, p crm.CompanyParams) (string, error) {
	id := s.id("company")
	s.companies = append(s.companies, crm.Company{ID: id, Name: p.Name})
	return id, nil
}

func (s *memStore) CreateContact(_ context.Context, p crm.ContactParams) (string, error) {
	id := s.id("contact")
	s.contacts = append(s.contacts, crm.Contact{ID: id, Name: p.Name, Email: p.Email})
	return id, nil
}

func (s *memStore) CreateDeal(_ context.Context, p crm.DealParams) (string, error) {
	if s.dealErr != nil {
		if err := s.dealErr(p); err != nil {
			return "", err
		}
	}
	id := s.id("deal")
	s.deals = append(s.deals, p)
	return id, nil
}

func (s *memStore) snapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := LoadSnapshot(context.Background(), s)
	require.NoError(t, err)
	return snap
}

func drain(t *testing.T, r *Run) *Outcome {
	t.Helper()
	ctx := context.Background()
	for {
		if _, more := r.Next(ctx); !more {
			break
		}
	}
	return r.Outcome()
}

func basicMapping() ColumnMapping {
	return ColumnMapping{
		"nome":    FieldDealName,
		"etapa":   FieldDealStage,
		"empresa": FieldCompanyName,
	}
}

func TestRun_MixedBatch(t *testing.T) {
	store := newMemStore([]crm.Stage{{ID: "s1", Name: "Qualificação"}})
	rows, err := ParseDelimited(
		"nome,etapa,empresa\n" +
			"Negócio A,Qualificação,Acme\n" +
			"Negócio B,Inexistente,Acme\n" +
			"Negócio C,Qualificação,Acme\n")
	require.NoError(t, err)

	run, err := NewRun(rows, basicMapping(), true, store.snapshot(t), store)
	require.NoError(t, err)
	out := drain(t, run)

	assert.Equal(t, 2, out.SuccessCount)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 2, out.Errors[0].Index)
	assert.Contains(t, out.Errors[0].Message, "Row 2:")
	assert.Contains(t, out.Errors[0].Message, "Inexistente")
	assert.Contains(t, out.Errors[0].Message, "não encontrada")

	// All three rows name the same company; only one is created.
	require.Len(t, store.companies, 1)
	assert.Equal(t, "Acme", store.companies[0].Name)
	assert.Len(t, store.deals, 2)
}

func TestRun_DedupAcrossRuns(t *testing.T) {
	store := newMemStore([]crm.Stage{{ID: "s1", Name: "Qualificação"}})
	rows := [][]string{
		{"nome", "etapa", "empresa"},
		{"Negócio A", "Qualificação", "Acme"},
	}

	for i := 0; i < 2; i++ {
		run, err := NewRun(rows, basicMapping(), true, store.snapshot(t), store)
		require.NoError(t, err)
		out := drain(t, run)
		assert.Equal(t, 1, out.SuccessCount)
	}

	// Second run finds "Acme" in the snapshot and reuses it.
	assert.Len(t, store.companies, 1)
	assert.Len(t, store.deals, 2)
	assert.Equal(t, store.deals[0].CompanyID, store.deals[1].CompanyID)
}

func TestRun_CompanyDedupCaseInsensitive(t *testing.T) {
	store := newMemStore([]crm.Stage{{ID: "s1", Name: "Qualificação"}})
	rows := [][]string{
		{"nome", "etapa", "empresa"},
		{"Negócio A", "Qualificação", "ACME"},
		{"Negócio B", "Qualificação", "  acme "},
	}

	run, err := NewRun(rows, basicMapping(), true, store.snapshot(t), store)
	require.NoError(t, err)
	drain(t, run)

	assert.Len(t, store.companies, 1)
}

func TestRun_ContactDedup(t *testing.T) {
	store := newMemStore([]crm.Stage{{ID: "s1", Name: "Qualificação"}})
	mapping := ColumnMapping{
		"nome":    FieldDealName,
		"etapa":   FieldDealStage,
		"contato": FieldContactName,
		"email":   FieldContactEmail,
	}
	rows := [][]string{
		{"nome", "etapa", "contato", "email"},
		{"N1", "Qualificação", "Maria Silva", "maria@acme.com"},
		{"N2", "Qualificação", "maria silva", "maria@acme.com"},
		{"N3", "Qualificação", "Maria Silva", "maria@other.com"},
	}

	run, err := NewRun(rows, mapping, true, store.snapshot(t), store)
	require.NoError(t, err)
	out := drain(t, run)
	assert.Equal(t, 3, out.SuccessCount)

	// Same name+email pair dedupes; a different email is a new contact.
	assert.Len(t, store.contacts, 2)
}

func TestRun_NoHeaderImportsFirstRow(t *testing.T) {
	store := newMemStore([]crm.Stage{{ID: "s1", Name: "Qualificação"}})
	rows := [][]string{
		{"Negócio A", "Qualificação"},
		{"Negócio B", "Qualificação"},
	}
	mapping := ColumnMapping{
		"Negócio A":    FieldDealName,
		"Qualificação": FieldDealStage,
	}

	run, err := NewRun(rows, mapping, false, store.snapshot(t), store)
	require.NoError(t, err)
	out := drain(t, run)

	assert.Equal(t, 2, out.SuccessCount)
	assert.Len(t, store.deals, 2)
}

func TestRun_MissingDealName(t *testing.T) {
	store := newMemStore([]crm.Stage{{ID: "s1", Name: "Qualificação"}})
	rows := [][]string{
		{"nome", "etapa", "empresa"},
		{"", "Qualificação", "Acme"},
	}

	run, err := NewRun(rows, basicMapping(), true, store.snapshot(t), store)
	require.NoError(t, err)
	out := drain(t, run)

	assert.Zero(t, out.SuccessCount)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0].Message, "deal name is required")
	// Validation failed before any entity was touched.
	assert.Empty(t, store.companies)
}

func TestRun_DealFailureKeepsCreatedEntities(t *testing.T) {
	store := newMemStore([]crm.Stage{{ID: "s1", Name: "Qualificação"}})
	store.dealErr = func(p crm.DealParams) error {
		if p.Name == "Falha" {
			return errors.New("deals_pkey duplicate key value violates unique constraint")
		}
		return nil
	}
	rows := [][]string{
		{"nome", "etapa", "empresa"},
		{"Falha", "Qualificação", "Acme"},
		{"Negócio B", "Qualificação", "Acme"},
	}

	run, err := NewRun(rows, basicMapping(), true, store.snapshot(t), store)
	require.NoError(t, err)
	out := drain(t, run)

	assert.Equal(t, 1, out.SuccessCount)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 1, out.Errors[0].Index)

	// The company created by the failed row survives and is reused by row 2.
	require.Len(t, store.companies, 1)
	require.Len(t, store.deals, 1)
	assert.Equal(t, store.companies[0].ID, store.deals[0].CompanyID)

	failed := run.FailedRows()
	require.Len(t, failed, 1)
	assert.Equal(t, []string{"Falha", "Qualificação", "Acme"}, failed[0].Data)
}

func TestRun_SellerResolution(t *testing.T) {
	store := newMemStore([]crm.Stage{{ID: "s1", Name: "Qualificação"}})
	store.sellers = []crm.Seller{
		{ID: "u1", Name: "João Souza"},
		{ID: "u2", Name: "Ana Lima"},
	}
	mapping := ColumnMapping{
		"nome":     FieldDealName,
		"etapa":    FieldDealStage,
		"vendedor": FieldDealCreatedBy,
	}
	rows := [][]string{
		{"nome", "etapa", "vendedor"},
		{"N1", "Qualificação", "u2"},
		{"N2", "Qualificação", "joão souza"},
		{"N3", "Qualificação", "Desconhecido"},
	}

	run, err := NewRun(rows, mapping, true, store.snapshot(t), store)
	require.NoError(t, err)
	out := drain(t, run)
	assert.Equal(t, 3, out.SuccessCount)

	require.Len(t, store.deals, 3)
	assert.Equal(t, "u2", store.deals[0].AssignedTo)
	assert.Equal(t, "u1", store.deals[1].AssignedTo)
	assert.Equal(t, "u1", store.deals[1].CreatedBy)
	// Unmatched seller is not an error; the deal lands unassigned.
	assert.Empty(t, store.deals[2].AssignedTo)
}

func TestRun_FullRowFields(t *testing.T) {
	store := newMemStore([]crm.Stage{{ID: "s1", Name: "Qualificação"}})
	mapping := ColumnMapping{
		"nome":   FieldDealName,
		"etapa":  FieldDealStage,
		"valor":  FieldDealValue,
		"status": FieldDealStatus,
		"origem": FieldDealSource,
		"prob":   FieldDealProbability,
	}
	rows := [][]string{
		{"nome", "etapa", "valor", "status", "origem", "prob"},
		{"Negócio A", "Qualificação", "R$ 1.234,56", "ganho", "Indicação", "80%"},
	}

	run, err := NewRun(rows, mapping, true, store.snapshot(t), store)
	require.NoError(t, err)
	out := drain(t, run)
	require.Equal(t, 1, out.SuccessCount)

	deal := store.deals[0]
	assert.Equal(t, "Negócio A", deal.Name)
	assert.Equal(t, "s1", deal.StageID)
	assert.Equal(t, 1234.56, deal.Value)
	assert.Equal(t, crm.StatusWon, deal.Status)
	assert.Equal(t, "Indicação", deal.Source)
	assert.Equal(t, 80, deal.Probability)
}

func TestRun_ProgressCounters(t *testing.T) {
	store := newMemStore([]crm.Stage{{ID: "s1", Name: "Qualificação"}})
	rows := [][]string{
		{"nome", "etapa", "empresa"},
		{"N1", "Qualificação", "Acme"},
		{"N2", "Qualificação", "Acme"},
		{"N3", "Qualificação", "Acme"},
		{"N4", "Qualificação", "Acme"},
	}

	run, err := NewRun(rows, basicMapping(), true, store.snapshot(t), store)
	require.NoError(t, err)

	assert.Equal(t, 4, run.Total())
	assert.Equal(t, 0, run.Percent())

	ctx := context.Background()
	run.Next(ctx)
	run.Next(ctx)
	assert.Equal(t, 2, run.Processed())
	assert.Equal(t, 50, run.Percent())

	drain(t, run)
	assert.Equal(t, 100, run.Percent())
}

func TestNewRun_Preconditions(t *testing.T) {
	store := newMemStore([]crm.Stage{{ID: "s1", Name: "Qualificação"}})
	snap := store.snapshot(t)

	_, err := NewRun(nil, basicMapping(), true, snap, store)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = NewRun([][]string{{"nome"}, {"N1"}}, ColumnMapping{"nome": FieldDealName}, true, snap, store)
	assert.ErrorIs(t, err, ErrMappingIncomplete)
	assert.Contains(t, err.Error(), "deal_stage")

	_, err = NewRun([][]string{{"nome", "etapa"}}, basicMapping(), true, snap, store)
	assert.ErrorIs(t, err, ErrNoDataRows)
}
