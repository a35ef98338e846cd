package importer

import "strings"

// FieldIgnored marks a column the user excluded from import. Ignored columns
// contribute nothing to row data and never satisfy the required-field gate.
const FieldIgnored FieldKey = "ignored"

// ColumnMapping maps raw CSV header strings to canonical field keys.
// A header absent from the map is unmapped. Created by AutoMap when a file is
// loaded, then adjusted by explicit user overrides.
type ColumnMapping map[string]FieldKey

// AutoMap suggests a mapping for the given headers via the synonym table.
// First match wins: a later header whose normalized token resolves to an
// already-claimed field is left unmapped for manual resolution.
func AutoMap(headers []string) ColumnMapping {
	m := make(ColumnMapping, len(headers))
	claimed := make(map[FieldKey]bool, len(headers))

	for _, h := range headers {
		key, ok := headerSynonyms[NormalizeHeader(h)]
		if !ok || claimed[key] {
			continue
		}
		m[h] = key
		claimed[key] = true
	}
	return m
}

// Missing returns the required canonical fields not yet claimed by any column.
func (m ColumnMapping) Missing() []FieldKey {
	mapped := make(map[FieldKey]bool, len(m))
	for _, key := range m {
		if key != FieldIgnored {
			mapped[key] = true
		}
	}

	var missing []FieldKey
	for _, f := range fields {
		if f.Required && !mapped[f.Key] {
			missing = append(missing, f.Key)
		}
	}
	return missing
}

// IsComplete reports whether every required field is mapped.
// The import cannot start until this is true.
func (m ColumnMapping) IsComplete() bool {
	return len(m.Missing()) == 0
}

// AvailableFields returns the canonical fields not claimed by any column other
// than excludingColumn, in declaration order. This drives the manual-override
// choices shown for one column; it is advisory only and does not prevent a
// direct assignment outside the suggestion list.
func (m ColumnMapping) AvailableFields(excludingColumn string) []Field {
	claimed := make(map[FieldKey]bool, len(m))
	for col, key := range m {
		if col == excludingColumn || key == FieldIgnored {
			continue
		}
		claimed[key] = true
	}

	var out []Field
	for _, f := range fields {
		if !claimed[f.Key] {
			out = append(out, f)
		}
	}
	return out
}

// RowData is the resolved view of one parsed row: a closed mapping from
// canonical field key to trimmed value. Empty values are omitted.
type RowData map[FieldKey]string

// ResolveRow applies the mapping to one row. Cells under unmapped or ignored
// columns contribute nothing; values are trimmed.
func (m ColumnMapping) ResolveRow(headers, row []string) RowData {
	data := make(RowData, len(headers))
	for i, h := range headers {
		if i >= len(row) {
			break
		}
		key, ok := m[h]
		if !ok || key == FieldIgnored {
			continue
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			data[key] = v
		}
	}
	return data
}
