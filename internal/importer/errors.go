package importer

// errors.go maps technical errors to user-facing messages with codes the
// support team can reference. Patterns are matched case-insensitively with
// strings.Contains; the first match wins, so specific patterns come before
// general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // what happened
	Action  string // what to do about it
	Code    string // support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// file-level (FILE001-FILE003)
	{
		pattern: "only .csv",
		msg: UserMessage{
			Message: "Arquivo não suportado",
			Action:  "Envie um arquivo .csv",
			Code:    "FILE001",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "O arquivo está vazio",
			Action:  "Envie um arquivo CSV com linhas de dados",
			Code:    "FILE002",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "O arquivo excede o tamanho máximo",
			Action:  "Divida o arquivo em partes menores",
			Code:    "FILE003",
		},
	},

	// mapping-level (MAP001-MAP002)
	{
		pattern: "required fields are not mapped",
		msg: UserMessage{
			Message: "Campos obrigatórios não mapeados",
			Action:  "Mapeie as colunas de nome e etapa do negócio antes de importar",
			Code:    "MAP001",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "O arquivo contém apenas o cabeçalho",
			Action:  "Adicione ao menos uma linha de dados",
			Code:    "MAP002",
		},
	},

	// row-level (ROW001-ROW002), shown when a single row error is surfaced
	{
		pattern: "deal name is required",
		msg: UserMessage{
			Message: "Linha sem nome de negócio",
			Action:  "Preencha o nome do negócio em todas as linhas",
			Code:    "ROW001",
		},
	},
	{
		pattern: "não encontrada",
		msg: UserMessage{
			Message: "Etapa do funil não reconhecida",
			Action:  "Use o nome exato de uma etapa existente",
			Code:    "ROW002",
		},
	},

	// storage (DB001-DB003)
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "Registro duplicado",
			Action:  "Verifique se o registro já existe no CRM",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Não foi possível acessar o banco de dados",
			Action:  "Tente novamente em alguns instantes",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "A operação expirou",
			Action:  "Tente novamente com um arquivo menor",
			Code:    "DB003",
		},
	},

	// run lifecycle (RUN001)
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Importação não encontrada",
			Action:  "A importação pode ter expirado; inicie uma nova",
			Code:    "RUN001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "Ocorreu um erro inesperado",
	Action:  "Tente novamente ou contate o suporte",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Falls back to ERR000 when no pattern matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, strings.ToLower(ep.pattern)) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders a mapped error as a single display string.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
