package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Nome", "nome"},
		{"Negócio", "negocio"},
		{"  Razão Social  ", "razao_social"},
		{"E-mail", "e_mail"},
		{"valor.total", "valor_total"},
		{"Data de Fechamento", "data_de_fechamento"},
		{"Ação!!", "acao"},
		{"CNPJ/CPF", "cnpj_cpf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeHeader(tt.in), "input %q", tt.in)
	}
}

func TestFieldByKey(t *testing.T) {
	f, ok := FieldByKey(FieldDealName)
	assert.True(t, ok)
	assert.True(t, f.Required)
	assert.Equal(t, GroupDeal, f.Group)

	_, ok = FieldByKey("nonsense")
	assert.False(t, ok)
}

func TestFields_RequiredSet(t *testing.T) {
	var required []FieldKey
	for _, f := range Fields() {
		if f.Required {
			required = append(required, f.Key)
		}
	}
	assert.Equal(t, []FieldKey{FieldDealName, FieldDealStage}, required)
}
