package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vendaflow/crmimport/internal/crm"
)

// ErrMappingIncomplete blocks an import whose required fields are unmapped.
// This is a precondition, not a per-row error.
var ErrMappingIncomplete = errors.New("required fields are not mapped")

// ErrNoDataRows blocks an import whose file holds a header and nothing else.
var ErrNoDataRows = errors.New("no data rows after header")

// Snapshot is the pre-batch view of existing CRM records. Loaded once before
// row processing; the dedup arena grows on top of it as rows create entities.
type Snapshot struct {
	Companies []crm.Company
	Contacts  []crm.Contact
	Stages    []crm.Stage
	Sellers   []crm.Seller
}

// LoadSnapshot reads all candidate lists for one tenant.
func LoadSnapshot(ctx context.Context, dir crm.Directory) (*Snapshot, error) {
	companies, err := dir.Companies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load companies: %w", err)
	}
	contacts, err := dir.Contacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	stages, err := dir.Stages(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stages: %w", err)
	}
	sellers, err := dir.Sellers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sellers: %w", err)
	}
	return &Snapshot{Companies: companies, Contacts: contacts, Stages: stages, Sellers: sellers}, nil
}

// RowOutcome is the result of processing a single row.
type RowOutcome struct {
	Index  int // 1-based over data rows
	DealID string
	Err    error
}

// Run processes one import batch, one row per Next call. Rows are strictly
// sequential: row n's creates must land before row n+1 starts, because they
// are dedup targets for later rows. The caller drives iteration and reports
// progress, which keeps the algorithm free of any UI rendering cycle.
//
// There is no row-level transaction: a row that creates a company or contact
// and then fails at deal creation leaves those entities persisted. Re-running
// the import finds and reuses them instead of duplicating.
type Run struct {
	headers []string
	rows    [][]string
	mapping ColumnMapping
	writer  crm.Writer
	stages  []crm.Stage
	sellers []crm.Seller
	arena   *dedupArena

	pos     int
	outcome Outcome
	failed  []FailedRow
}

// NewRun validates preconditions and prepares a batch. The first parsed row
// is always the mapping's header reference; hasHeader decides whether it is
// also imported as data.
func NewRun(rows [][]string, mapping ColumnMapping, hasHeader bool, snap *Snapshot, w crm.Writer) (*Run, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}
	if missing := mapping.Missing(); len(missing) > 0 {
		keys := make([]string, len(missing))
		for i, k := range missing {
			keys[i] = string(k)
		}
		return nil, fmt.Errorf("%w: %s", ErrMappingIncomplete, strings.Join(keys, ", "))
	}

	headers := rows[0]
	data := rows
	if hasHeader {
		data = rows[1:]
	}
	if len(data) == 0 {
		return nil, ErrNoDataRows
	}

	return &Run{
		headers: headers,
		rows:    data,
		mapping: mapping,
		writer:  w,
		stages:  snap.Stages,
		sellers: snap.Sellers,
		arena:   newDedupArena(snap),
	}, nil
}

// Total returns the number of data rows in the batch.
func (r *Run) Total() int { return len(r.rows) }

// Processed returns how many rows have been consumed so far.
func (r *Run) Processed() int { return r.pos }

// Percent returns batch completion as 0-100.
func (r *Run) Percent() int {
	if len(r.rows) == 0 {
		return 100
	}
	return (r.pos * 100) / len(r.rows)
}

// Outcome returns the accumulated result. Final once Next has returned false.
func (r *Run) Outcome() *Outcome {
	out := r.outcome
	return &out
}

// FailedRows returns the raw cells of every failed row, in order.
func (r *Run) FailedRows() []FailedRow { return r.failed }

// Next processes one row and reports its outcome. Returns false when the
// batch is exhausted. Row failures are accumulated, never propagated: the
// batch always runs to completion.
func (r *Run) Next(ctx context.Context) (RowOutcome, bool) {
	if r.pos >= len(r.rows) {
		return RowOutcome{}, false
	}

	row := r.rows[r.pos]
	r.pos++
	idx := r.pos

	out := RowOutcome{Index: idx}
	dealID, err := r.importRow(ctx, row)
	if err != nil {
		out.Err = err
		msg := fmt.Sprintf("Row %d: %v", idx, err)
		r.outcome.Errors = append(r.outcome.Errors, RowError{Index: idx, Message: msg})
		r.failed = append(r.failed, FailedRow{Index: idx, Message: msg, Data: row})
		return out, true
	}

	out.DealID = dealID
	r.outcome.SuccessCount++
	return out, true
}

// importRow runs the per-row reconciliation: validate, resolve stage, resolve
// or create company then contact, resolve seller, create the deal.
func (r *Run) importRow(ctx context.Context, row []string) (string, error) {
	data := r.mapping.ResolveRow(r.headers, row)

	name := data[FieldDealName]
	if name == "" {
		return "", errors.New("deal name is required")
	}

	stageID, err := ResolveStage(data[FieldDealStage], r.stages)
	if err != nil {
		return "", err
	}

	// Company before contact: a newly created contact may reference it.
	var companyID string
	if companyName := data[FieldCompanyName]; companyName != "" {
		companyID, err = r.resolveCompany(ctx, companyName, data)
		if err != nil {
			return "", err
		}
	}

	var contactID string
	if contactName := data[FieldContactName]; contactName != "" {
		contactID, err = r.resolveContact(ctx, contactName, companyID, data)
		if err != nil {
			return "", err
		}
	}

	// Seller assignment is optional; an unmatched reference is not an error.
	sellerID := resolveSeller(data[FieldDealCreatedBy], r.sellers)

	dealID, err := r.writer.CreateDeal(ctx, crm.DealParams{
		Name:          name,
		Value:         parseValue(data[FieldDealValue]),
		Probability:   parseIntField(data[FieldDealProbability]),
		ExpectedClose: data[FieldDealExpectedClose],
		ClosedAt:      data[FieldDealClosedAt],
		StageID:       stageID,
		CompanyID:     companyID,
		ContactID:     contactID,
		AssignedTo:    sellerID,
		CreatedBy:     sellerID,
		Source:        data[FieldDealSource],
		Status:        classifyStatus(data[FieldDealStatus]),
		DaysInactive:  parseIntField(data[FieldDealDaysInactive]),
		LostReason:    data[FieldDealLostReason],
	})
	if err != nil {
		return "", err
	}
	return dealID, nil
}

func (r *Run) resolveCompany(ctx context.Context, name string, data RowData) (string, error) {
	if id, ok := r.arena.company(name); ok {
		return id, nil
	}

	id, err := r.writer.CreateCompany(ctx, crm.CompanyParams{
		Name:    name,
		TaxID:   data[FieldCompanyCNPJ],
		Phone:   data[FieldCompanyPhone],
		Email:   data[FieldCompanyEmail],
		Address: data[FieldCompanyAddress],
		State:   data[FieldCompanyState],
		City:    data[FieldCompanyCity],
	})
	if err != nil {
		return "", err
	}
	r.arena.addCompany(name, id)
	return id, nil
}

func (r *Run) resolveContact(ctx context.Context, name, companyID string, data RowData) (string, error) {
	email := data[FieldContactEmail]
	if id, ok := r.arena.contact(name, email); ok {
		return id, nil
	}

	id, err := r.writer.CreateContact(ctx, crm.ContactParams{
		Name:      name,
		Email:     email,
		Phone:     data[FieldContactPhone],
		Mobile:    data[FieldContactMobile],
		Position:  data[FieldContactPosition],
		CompanyID: companyID,
	})
	if err != nil {
		return "", err
	}
	r.arena.addContact(name, email, id)
	return id, nil
}

// resolveSeller matches a free-text seller reference: identifier first, then
// case-insensitive name. Empty result means no seller is assigned.
func resolveSeller(raw string, sellers []crm.Seller) string {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return ""
	}

	for _, s := range sellers {
		if ref == s.ID {
			return s.ID
		}
	}
	for _, s := range sellers {
		if strings.EqualFold(ref, s.Name) {
			return s.ID
		}
	}
	return ""
}

// dedupArena holds the in-memory candidate tables for entity deduplication:
// company-by-name and contact-by-name(+email). Seeded from the pre-batch
// snapshot and appended to after each successful create, so entities created
// by earlier rows are visible to later rows without re-querying storage.
type dedupArena struct {
	companyByName      map[string]string
	contactByName      map[string]string
	contactByNameEmail map[string]string
}

func newDedupArena(snap *Snapshot) *dedupArena {
	a := &dedupArena{
		companyByName:      make(map[string]string, len(snap.Companies)),
		contactByName:      make(map[string]string, len(snap.Contacts)),
		contactByNameEmail: make(map[string]string, len(snap.Contacts)),
	}
	for _, c := range snap.Companies {
		a.addCompany(c.Name, c.ID)
	}
	for _, c := range snap.Contacts {
		a.addContact(c.Name, c.Email, c.ID)
	}
	return a
}

func dedupKey(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "\x1f")
}

func (a *dedupArena) company(name string) (string, bool) {
	id, ok := a.companyByName[dedupKey(name)]
	return id, ok
}

func (a *dedupArena) addCompany(name, id string) {
	key := dedupKey(name)
	if _, exists := a.companyByName[key]; !exists {
		a.companyByName[key] = id
	}
}

// contact matches case-insensitively on name, and on email too when the row
// supplied one.
func (a *dedupArena) contact(name, email string) (string, bool) {
	if email != "" {
		id, ok := a.contactByNameEmail[dedupKey(name, email)]
		return id, ok
	}
	id, ok := a.contactByName[dedupKey(name)]
	return id, ok
}

func (a *dedupArena) addContact(name, email, id string) {
	nameKey := dedupKey(name)
	if _, exists := a.contactByName[nameKey]; !exists {
		a.contactByName[nameKey] = id
	}
	if email != "" {
		pairKey := dedupKey(name, email)
		if _, exists := a.contactByNameEmail[pairKey]; !exists {
			a.contactByNameEmail[pairKey] = id
		}
	}
}
