package services

import (
	"fmt"
	"strings"
)

// Messages is the user-facing text catalog for one language.
type Messages struct {
	Welcome      string
	EmptyMessage string
	// ErrorTemplate has a single %s verb for the error details.
	ErrorTemplate string
	// NoResponse is used when the provider produced neither text nor a block reason.
	NoResponse string
	// Blocked has a single %s verb for the block reason.
	Blocked string
}

var catalog = map[string]Messages{
	"en": {
		Welcome:       "Welcome to the chat relay!",
		EmptyMessage:  "Empty message, please send a valid message.",
		ErrorTemplate: "Sorry, an error occurred: %s. Please check your connection and settings.",
		NoResponse:    "The model returned no response.",
		Blocked:       "The model did not answer because the content was blocked (reason: %s).",
	},
	"pt": {
		Welcome:       "Bem-vindo ao relay de chat!",
		EmptyMessage:  "Mensagem vazia, por favor, envie uma mensagem válida.",
		ErrorTemplate: "Desculpe, ocorreu um erro: %s. Por favor, verifique sua conexão e configurações.",
		NoResponse:    "O modelo não retornou nenhuma resposta.",
		Blocked:       "O modelo não respondeu porque o conteúdo foi bloqueado (motivo: %s).",
	},
}

// MessagesFor returns the catalog for lang, falling back to English.
func MessagesFor(lang string) Messages {
	if m, ok := catalog[strings.ToLower(lang)]; ok {
		return m
	}
	return catalog["en"]
}

// FormatError renders err with the error template.
func (m Messages) FormatError(err error) string {
	return fmt.Sprintf(m.ErrorTemplate, err.Error())
}

// FormatBlocked renders the explanatory reply for withheld content.
func (m Messages) FormatBlocked(reason string) string {
	return fmt.Sprintf(m.Blocked, reason)
}
