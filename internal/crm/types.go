// Package crm defines the CRM entities the import pipeline reads and creates,
// and the collaborator interfaces it consumes. The pipeline itself never talks
// to storage directly; it works against Directory (reads) and Writer (creates)
// so tests can substitute in-memory fakes.
package crm

import "context"

// DealStatus is the lifecycle state of a deal.
type DealStatus string

const (
	StatusOpen DealStatus = "open"
	StatusWon  DealStatus = "won"
	StatusLost DealStatus = "lost"
)

// Company is a customer organization, referenced by deals and contacts.
type Company struct {
	ID   string
	Name string
}

// Contact is a person at a company. Email may be empty.
type Contact struct {
	ID    string
	Name  string
	Email string
}

// Stage is a named step in a sales funnel. Won/Lost mark terminal stages.
type Stage struct {
	ID       string
	Name     string
	FunnelID string
	Won      bool
	Lost     bool
}

// Seller is a user eligible to be assigned to or recorded as creator of a deal.
type Seller struct {
	ID   string
	Name string
}

// CompanyParams holds the fields for creating a company.
type CompanyParams struct {
	Name    string
	TaxID   string
	Phone   string
	Email   string
	Address string
	State   string
	City    string
}

// ContactParams holds the fields for creating a contact.
// CompanyID may be empty when the row carried no company.
type ContactParams struct {
	Name      string
	Email     string
	Phone     string
	Mobile    string
	Position  string
	CompanyID string
}

// DealParams holds the fields for creating a deal.
// CompanyID, ContactID, AssignedTo and CreatedBy may be empty.
// ExpectedClose and ClosedAt are passed through as provided; the store
// decides how to persist them.
type DealParams struct {
	Name          string
	Value         float64
	Probability   int
	ExpectedClose string
	ClosedAt      string
	StageID       string
	CompanyID     string
	ContactID     string
	AssignedTo    string
	CreatedBy     string
	Source        string
	Status        DealStatus
	DaysInactive  int
	LostReason    string
}

// Directory provides read access to existing CRM records.
// Implementations are scoped to a single tenant.
type Directory interface {
	Companies(ctx context.Context) ([]Company, error)
	Contacts(ctx context.Context) ([]Contact, error)
	Stages(ctx context.Context) ([]Stage, error)
	Sellers(ctx context.Context) ([]Seller, error)
}

// Writer provides create operations. Each returns the new record's identifier.
type Writer interface {
	CreateCompany(ctx context.Context, p CompanyParams) (string, error)
	CreateContact(ctx context.Context, p ContactParams) (string, error)
	CreateDeal(ctx context.Context, p DealParams) (string, error)
}

// Store combines reads and creates for one tenant.
type Store interface {
	Directory
	Writer
}
