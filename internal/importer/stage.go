package importer

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/vendaflow/crmimport/internal/crm"
)

// stageSynonyms maps canonical stage-name tokens (lower-cased, accent-folded)
// to informal spellings sellers type into spreadsheets. Ordered so resolution
// stays deterministic. Never mutated at runtime.
var stageSynonyms = []struct {
	key  string
	syns []string
}{
	{"qualificacao", []string{"qualificado", "qualificada", "qualificar", "novo lead", "lead"}},
	{"proposta", []string{"orcamento", "cotacao", "apresentacao", "proposal"}},
	{"negociacao", []string{"negociar", "em negociacao", "negotiation", "follow up"}},
	{"ganho", []string{"ganha", "venda", "vendido", "fechado", "won", "win"}},
	{"perdido", []string{"perdida", "perda", "lost", "descartado"}},
}

// StageError reports a failed stage resolution. Known carries every valid
// stage name so the caller can surface an actionable message; Hint is the
// closest known name when one is plausibly a typo of the input.
type StageError struct {
	Input string
	Known []string
	Hint  string
}

func (e *StageError) Error() string {
	names := strings.Join(e.Known, ", ")
	if e.Input == "" {
		return fmt.Sprintf("etapa não informada (etapas disponíveis: %s)", names)
	}
	msg := fmt.Sprintf("etapa %q não encontrada (etapas disponíveis: %s)", e.Input, names)
	if e.Hint != "" {
		msg += fmt.Sprintf("; você quis dizer %q?", e.Hint)
	}
	return msg
}

// ResolveStage resolves a free-text stage reference to a pipeline-stage ID.
// Resolution is tiered; the first tier producing a match wins and there is no
// scoring across tiers:
//
//  1. empty input fails immediately
//  2. exact match on stage ID
//  3. case-insensitive exact match on stage name
//  4. substring match either direction, first stage in iteration order wins
//  5. synonym-set match, either side contained in the other
//
// Deterministic for a given (raw, stages) pair; no side effects.
func ResolveStage(raw string, stages []crm.Stage) (string, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return "", &StageError{Known: stageNames(stages)}
	}

	for _, st := range stages {
		if input == st.ID {
			return st.ID, nil
		}
	}

	for _, st := range stages {
		if strings.EqualFold(input, st.Name) {
			return st.ID, nil
		}
	}

	lower := strings.ToLower(input)
	for _, st := range stages {
		name := strings.ToLower(st.Name)
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return st.ID, nil
		}
	}

	folded := foldAccents(lower)
	for _, st := range stages {
		name := foldAccents(strings.ToLower(st.Name))
		for _, set := range stageSynonyms {
			if !strings.Contains(name, set.key) {
				continue
			}
			for _, syn := range set.syns {
				if strings.Contains(folded, syn) || strings.Contains(syn, folded) {
					return st.ID, nil
				}
			}
		}
	}

	return "", &StageError{
		Input: input,
		Known: stageNames(stages),
		Hint:  closestStageName(folded, stages),
	}
}

func stageNames(stages []crm.Stage) []string {
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.Name
	}
	return names
}

// closestStageName returns the known stage name nearest to the input by edit
// distance, or empty when nothing is close enough to be a plausible typo.
// Suggestion only: it never influences which tier matches.
func closestStageName(folded string, stages []crm.Stage) string {
	const maxDistance = 3

	best := ""
	bestDist := maxDistance + 1
	for _, st := range stages {
		d := levenshtein.ComputeDistance(folded, foldAccents(strings.ToLower(st.Name)))
		if d < bestDist {
			bestDist = d
			best = st.Name
		}
	}
	return best
}
