package validation

import (
	"fmt"
	"strings"

	"github.com/thermos-iot/thermos-console/pkg/display"
	"github.com/thermos-iot/thermos-console/pkg/schema"
)

type template struct {
	es string
	en string
}

func (t template) format(lang display.Lang, args ...any) string {
	if lang == display.English {
		return fmt.Sprintf(t.en, args...)
	}
	return fmt.Sprintf(t.es, args...)
}

var (
	msgRequired     = template{"El campo %s es obligatorio", "%s is required"}
	msgUnknownTable = template{"Tabla desconocida: %s", "Unknown table: %s"}
	msgEmptyBatch   = template{"No hay filas para insertar", "There are no rows to insert"}
	msgInvalidID    = template{"%s debe ser un identificador válido", "%s must be a valid id"}
	msgDuplicate    = template{"Ya existe un registro con %s = %s", "A record with %s = %s already exists"}
	msgBatchDup     = template{"La fila %d repite %s = %s de la fila %d", "Row %d repeats %s = %s from row %d"}
	msgRow          = template{"Fila %d: %s", "Row %d: %s"}
	msgSummary      = template{"Corrija los siguientes errores:", "Please fix the following errors:"}
)

// formatMessages maps validator tags to their messages. Templates take the
// field name, then the tag parameter when the tag has one.
var formatMessages = map[string]template{
	"max":         {"%s debe tener como máximo %s caracteres", "%s must be at most %s characters"},
	"min":         {"%s debe tener al menos %s caracteres", "%s must be at least %s characters"},
	"len":         {"%s debe tener exactamente %s caracteres", "%s must be exactly %s characters long"},
	"hexadecimal": {"%s debe ser hexadecimal", "%s must be hexadecimal"},
	"numeric":     {"%s debe ser numérico", "%s must be numeric"},
	"email":       {"%s debe ser un correo válido", "%s must be a valid email"},
	"latitude":    {"%s debe ser una latitud válida", "%s must be a valid latitude"},
	"longitude":   {"%s debe ser una longitud válida", "%s must be a valid longitude"},
}

var genericFormat = template{"%s no es válido (%s)", "%s is invalid (%s)"}

var issueMessages = map[string]template{
	schema.IssueRange:       {"%s no puede ser mayor que %s", "%s cannot be greater than %s"},
	schema.IssueOneRequired: {"Debe ingresar %s o %s", "Either %s or %s is required"},
}

func formatMessage(lang display.Lang, field, tag, param string) string {
	name := display.ColumnDisplayNameTranslated(field, lang)
	if t, ok := formatMessages[tag]; ok {
		if param == "" {
			return t.format(lang, name)
		}
		return t.format(lang, name, param)
	}
	return genericFormat.format(lang, name, tag)
}

func issueMessage(lang display.Lang, issue schema.Issue) string {
	params := make([]any, len(issue.Params))
	for i, p := range issue.Params {
		if column, ok := p.(string); ok {
			params[i] = display.ColumnDisplayNameTranslated(column, lang)
			continue
		}
		params[i] = p
	}

	t, ok := issueMessages[issue.Code]
	if !ok {
		return genericFormat.format(lang, display.ColumnDisplayNameTranslated(issue.Field, lang), issue.Code)
	}
	return t.format(lang, params...)
}

// fieldNames renders a natural key's columns as "a, b".
func fieldNames(lang display.Lang, columns []string) string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = display.ColumnDisplayNameTranslated(c, lang)
	}
	return strings.Join(names, ", ")
}

// fieldValues renders a row's natural key values as "a, b".
func fieldValues(row schema.Row, columns []string) string {
	values := make([]string, len(columns))
	for i, c := range columns {
		values[i] = row.String(c)
	}
	return strings.Join(values, ", ")
}
