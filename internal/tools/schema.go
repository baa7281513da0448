package tools

import "github.com/eduplay1216-alt/myjarvis/internal/gemini"

// Small builders so tool declarations stay readable. They compile down
// to the OpenAPI subset the generateContent API accepts.

type schemaProp struct {
	typ   string
	desc  string
	enum  []string
	items *schemaObj
}

type schemaObj struct {
	props    map[string]*schemaProp
	required []string
	scalar   string // set instead of props for scalar array elements
}

func gemFunc(name, desc string, params *schemaObj) gemini.FunctionDeclaration {
	return gemini.FunctionDeclaration{
		Name:        name,
		Description: desc,
		Parameters:  params.toSchema(),
	}
}

func (o *schemaObj) toSchema() *gemini.Schema {
	if o == nil {
		return nil
	}
	if o.scalar != "" {
		return &gemini.Schema{Type: o.scalar}
	}
	s := &gemini.Schema{
		Type:       "object",
		Properties: make(map[string]*gemini.Schema, len(o.props)),
		Required:   o.required,
	}
	for name, p := range o.props {
		ps := &gemini.Schema{
			Type:        p.typ,
			Description: p.desc,
			Enum:        p.enum,
		}
		if p.items != nil {
			ps.Items = p.items.toSchema()
		}
		s.Properties[name] = ps
	}
	return s
}
