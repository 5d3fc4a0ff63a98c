package model

// TemplateCategory enumerates the kinds of retrievable templates.
type TemplateCategory string

const (
	TemplateCategoryPrompt   TemplateCategory = "prompt"
	TemplateCategoryScaffold TemplateCategory = "scaffold"
)

// Template is a retrievable text blob used as input to prompt composition or
// file scaffolding (spec.md §3, §4.7).
type Template struct {
	Key          string           `json:"key"`
	ContentBytes string           `json:"contentBytes"`
	CID          string           `json:"cid"`
	Category     TemplateCategory `json:"category"`
}
