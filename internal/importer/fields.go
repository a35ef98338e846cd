// Package importer implements the bulk lead/deal import pipeline: delimited-text
// parsing, header-to-field auto-mapping, pipeline-stage resolution and per-row
// entity reconciliation. It has no UI dependencies and talks to the CRM only
// through the interfaces in the crm package.
package importer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FieldGroup is the entity a canonical import field belongs to.
type FieldGroup string

const (
	GroupDeal    FieldGroup = "deal"
	GroupContact FieldGroup = "contact"
	GroupCompany FieldGroup = "company"
)

// FieldKey identifies a canonical import field. The set is closed: every
// consumer works over these keys, never over raw header strings.
type FieldKey string

const (
	FieldDealName          FieldKey = "deal_name"
	FieldDealValue         FieldKey = "deal_value"
	FieldDealStage         FieldKey = "deal_stage"
	FieldDealStatus        FieldKey = "deal_status"
	FieldDealExpectedClose FieldKey = "deal_expected_close"
	FieldDealClosedAt      FieldKey = "deal_closed_at"
	FieldDealSource        FieldKey = "deal_source"
	FieldDealDaysInactive  FieldKey = "deal_days_inactive"
	FieldDealCreatedBy     FieldKey = "deal_created_by"
	FieldDealProbability   FieldKey = "deal_probability"
	FieldDealLostReason    FieldKey = "deal_lost_reason"

	FieldContactName     FieldKey = "contact_name"
	FieldContactEmail    FieldKey = "contact_email"
	FieldContactPhone    FieldKey = "contact_phone"
	FieldContactMobile   FieldKey = "contact_mobile"
	FieldContactPosition FieldKey = "contact_position"

	FieldCompanyName    FieldKey = "company_name"
	FieldCompanyCNPJ    FieldKey = "company_cnpj"
	FieldCompanyPhone   FieldKey = "company_phone"
	FieldCompanyEmail   FieldKey = "company_email"
	FieldCompanyAddress FieldKey = "company_address"
	FieldCompanyState   FieldKey = "company_state"
	FieldCompanyCity    FieldKey = "company_city"
)

// Field describes one canonical import field.
type Field struct {
	Key      FieldKey   `json:"key"`
	Label    string     `json:"label"`
	Group    FieldGroup `json:"group"`
	Required bool       `json:"required"`
}

// fields is the canonical field table. Only deal_name and deal_stage are
// required. Defined once; never mutated.
var fields = []Field{
	{FieldDealName, "Nome do negócio", GroupDeal, true},
	{FieldDealValue, "Valor", GroupDeal, false},
	{FieldDealStage, "Etapa do funil", GroupDeal, true},
	{FieldDealStatus, "Status", GroupDeal, false},
	{FieldDealExpectedClose, "Previsão de fechamento", GroupDeal, false},
	{FieldDealClosedAt, "Data de fechamento", GroupDeal, false},
	{FieldDealSource, "Origem", GroupDeal, false},
	{FieldDealDaysInactive, "Dias sem interação", GroupDeal, false},
	{FieldDealCreatedBy, "Vendedor responsável", GroupDeal, false},
	{FieldDealProbability, "Probabilidade", GroupDeal, false},
	{FieldDealLostReason, "Motivo da perda", GroupDeal, false},

	{FieldContactName, "Nome do contato", GroupContact, false},
	{FieldContactEmail, "E-mail do contato", GroupContact, false},
	{FieldContactPhone, "Telefone do contato", GroupContact, false},
	{FieldContactMobile, "Celular", GroupContact, false},
	{FieldContactPosition, "Cargo", GroupContact, false},

	{FieldCompanyName, "Nome da empresa", GroupCompany, false},
	{FieldCompanyCNPJ, "CNPJ", GroupCompany, false},
	{FieldCompanyPhone, "Telefone da empresa", GroupCompany, false},
	{FieldCompanyEmail, "E-mail da empresa", GroupCompany, false},
	{FieldCompanyAddress, "Endereço", GroupCompany, false},
	{FieldCompanyState, "Estado", GroupCompany, false},
	{FieldCompanyCity, "Cidade", GroupCompany, false},
}

// Fields returns the canonical field table in declaration order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// FieldByKey looks up a canonical field by key.
func FieldByKey(key FieldKey) (Field, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// headerSynonyms maps normalized header tokens to canonical field keys.
// Many-to-one: Portuguese and English spellings map to the same field.
// Never mutated at runtime.
var headerSynonyms = map[string]FieldKey{
	// deal name
	"negocio":         FieldDealName,
	"nome":            FieldDealName,
	"nome_do_negocio": FieldDealName,
	"oportunidade":    FieldDealName,
	"titulo":          FieldDealName,
	"deal":            FieldDealName,
	"deal_name":       FieldDealName,

	// deal value
	"valor":            FieldDealValue,
	"valor_do_negocio": FieldDealValue,
	"preco":            FieldDealValue,
	"value":            FieldDealValue,
	"amount":           FieldDealValue,
	"deal_value":       FieldDealValue,

	// deal stage
	"etapa":          FieldDealStage,
	"etapa_do_funil": FieldDealStage,
	"estagio":        FieldDealStage,
	"fase":           FieldDealStage,
	"stage":          FieldDealStage,
	"pipeline_stage": FieldDealStage,
	"deal_stage":     FieldDealStage,

	// deal status
	"status":      FieldDealStatus,
	"situacao":    FieldDealStatus,
	"deal_status": FieldDealStatus,

	// expected close
	"previsao":               FieldDealExpectedClose,
	"previsao_de_fechamento": FieldDealExpectedClose,
	"fechamento_previsto":    FieldDealExpectedClose,
	"data_prevista":          FieldDealExpectedClose,
	"expected_close":         FieldDealExpectedClose,
	"expected_close_date":    FieldDealExpectedClose,
	"deal_expected_close":    FieldDealExpectedClose,

	// closed at
	"data_de_fechamento": FieldDealClosedAt,
	"data_fechamento":    FieldDealClosedAt,
	"fechado_em":         FieldDealClosedAt,
	"closed_at":          FieldDealClosedAt,
	"close_date":         FieldDealClosedAt,
	"deal_closed_at":     FieldDealClosedAt,

	// source
	"origem":      FieldDealSource,
	"fonte":       FieldDealSource,
	"canal":       FieldDealSource,
	"source":      FieldDealSource,
	"deal_source": FieldDealSource,

	// days without interaction
	"dias_sem_interacao": FieldDealDaysInactive,
	"dias_sem_contato":   FieldDealDaysInactive,
	"dias_parado":        FieldDealDaysInactive,
	"days_inactive":      FieldDealDaysInactive,
	"deal_days_inactive": FieldDealDaysInactive,

	// seller
	"vendedor":        FieldDealCreatedBy,
	"responsavel":     FieldDealCreatedBy,
	"criado_por":      FieldDealCreatedBy,
	"dono":            FieldDealCreatedBy,
	"seller":          FieldDealCreatedBy,
	"owner":           FieldDealCreatedBy,
	"created_by":      FieldDealCreatedBy,
	"deal_created_by": FieldDealCreatedBy,

	// probability
	"probabilidade":    FieldDealProbability,
	"chance":           FieldDealProbability,
	"probability":      FieldDealProbability,
	"deal_probability": FieldDealProbability,

	// lost reason
	"motivo":           FieldDealLostReason,
	"motivo_da_perda":  FieldDealLostReason,
	"motivo_perda":     FieldDealLostReason,
	"lost_reason":      FieldDealLostReason,
	"deal_lost_reason": FieldDealLostReason,

	// contact
	"contato":         FieldContactName,
	"nome_do_contato": FieldContactName,
	"nome_contato":    FieldContactName,
	"pessoa":          FieldContactName,
	"contact":         FieldContactName,
	"contact_name":    FieldContactName,

	"email":            FieldContactEmail,
	"e_mail":           FieldContactEmail,
	"email_do_contato": FieldContactEmail,
	"contact_email":    FieldContactEmail,

	"telefone":            FieldContactPhone,
	"fone":                FieldContactPhone,
	"telefone_do_contato": FieldContactPhone,
	"phone":               FieldContactPhone,
	"contact_phone":       FieldContactPhone,

	"celular":        FieldContactMobile,
	"whatsapp":       FieldContactMobile,
	"mobile":         FieldContactMobile,
	"contact_mobile": FieldContactMobile,

	"cargo":            FieldContactPosition,
	"funcao":           FieldContactPosition,
	"position":         FieldContactPosition,
	"contact_position": FieldContactPosition,

	// company
	"empresa":         FieldCompanyName,
	"nome_da_empresa": FieldCompanyName,
	"razao_social":    FieldCompanyName,
	"organizacao":     FieldCompanyName,
	"company":         FieldCompanyName,
	"company_name":    FieldCompanyName,

	"cnpj":         FieldCompanyCNPJ,
	"cpf_cnpj":     FieldCompanyCNPJ,
	"tax_id":       FieldCompanyCNPJ,
	"company_cnpj": FieldCompanyCNPJ,

	"telefone_da_empresa": FieldCompanyPhone,
	"telefone_empresa":    FieldCompanyPhone,
	"company_phone":       FieldCompanyPhone,

	"email_da_empresa": FieldCompanyEmail,
	"email_empresa":    FieldCompanyEmail,
	"company_email":    FieldCompanyEmail,

	"endereco":        FieldCompanyAddress,
	"logradouro":      FieldCompanyAddress,
	"address":         FieldCompanyAddress,
	"company_address": FieldCompanyAddress,

	"estado":        FieldCompanyState,
	"uf":            FieldCompanyState,
	"state":         FieldCompanyState,
	"company_state": FieldCompanyState,

	"cidade":       FieldCompanyCity,
	"municipio":    FieldCompanyCity,
	"city":         FieldCompanyCity,
	"company_city": FieldCompanyCity,
}

// accentFolder strips combining marks, so "previsão" and "previsao"
// normalize to the same token.
var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldAccents removes diacritics from s. Returns s unchanged on transform error.
func foldAccents(s string) string {
	out, _, err := transform.String(accentFolder, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeHeader lowers, folds accents, converts separators to underscores
// and strips everything outside [a-z0-9_]. This is the lookup key for the
// synonym table.
func NormalizeHeader(s string) string {
	s = foldAccents(strings.ToLower(strings.TrimSpace(s)))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '/':
			b.WriteByte('_')
		}
	}
	return b.String()
}
