package importer

// convert.go handles the messy reality of spreadsheet cells: currency symbols,
// Brazilian decimal commas, percent signs. Parse failures never fail a row;
// numeric fields default to zero.

import (
	"strconv"
	"strings"

	"github.com/vendaflow/crmimport/internal/crm"
)

// parseValue parses a monetary value, tolerating currency symbols and both
// "1.234,56" and "1,234.56" separators. Returns 0 when unparsable.
func parseValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	s = strings.NewReplacer("R$", "", "r$", "", "$", "", " ", "").Replace(s)

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			// 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", ".")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseIntField parses an integer cell such as probability or inactivity days.
// Tolerates a trailing percent sign; returns 0 when unparsable.
func parseIntField(s string) int {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

var (
	wonTokens  = []string{"ganho", "ganha", "won", "vendido", "venda"}
	lostTokens = []string{"perdido", "perdida", "perda", "lost"}
)

// classifyStatus derives a deal status from free text. Unrecognized or empty
// values mean the deal is still open.
func classifyStatus(s string) crm.DealStatus {
	v := foldAccents(strings.ToLower(strings.TrimSpace(s)))
	if v == "" {
		return crm.StatusOpen
	}

	for _, tok := range wonTokens {
		if strings.Contains(v, tok) {
			return crm.StatusWon
		}
	}
	for _, tok := range lostTokens {
		if strings.Contains(v, tok) {
			return crm.StatusLost
		}
	}
	return crm.StatusOpen
}
