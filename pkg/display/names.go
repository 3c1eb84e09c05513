package display

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lang selects the language of user-facing text.
type Lang string

const (
	Spanish Lang = "es"
	English Lang = "en"
)

// ParseLang maps a locale string such as "en-US" to a Lang. Anything that is
// not English falls back to Spanish.
func ParseLang(s string) Lang {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "en" || strings.HasPrefix(s, "en-") || strings.HasPrefix(s, "en_") {
		return English
	}
	return Spanish
}

type caption struct {
	es string
	en string
}

func (c caption) in(lang Lang) string {
	if lang == English {
		return c.en
	}
	return c.es
}

var columnNames = map[string]caption{
	"statusid":       {"Estado", "Status"},
	"usercreatedid":  {"Creado por", "Created by"},
	"datecreated":    {"Fecha de creación", "Created at"},
	"usermodifiedid": {"Modificado por", "Modified by"},
	"datemodified":   {"Fecha de modificación", "Modified at"},

	"pais":         {"País", "Country"},
	"paisid":       {"País", "Country"},
	"paisabrev":    {"Abreviatura", "Abbreviation"},
	"empresa":      {"Empresa", "Company"},
	"empresaid":    {"Empresa", "Company"},
	"empresabrev":  {"Abreviatura", "Abbreviation"},
	"fundo":        {"Fundo", "Farm"},
	"fundoid":      {"Fundo", "Farm"},
	"fundoabrev":   {"Abreviatura", "Abbreviation"},
	"ubicacion":    {"Ubicación", "Location"},
	"ubicacionid":  {"Ubicación", "Location"},
	"entidad":      {"Entidad", "Entity"},
	"entidadid":    {"Entidad", "Entity"},
	"tipo":         {"Tipo", "Type"},
	"tipoid":       {"Tipo", "Type"},
	"tipos":        {"Tipos", "Types"},
	"nodo":         {"Nodo", "Node"},
	"nodoid":       {"Nodo", "Node"},
	"deveui":       {"DevEUI", "DevEUI"},
	"latitud":      {"Latitud", "Latitude"},
	"longitud":     {"Longitud", "Longitude"},
	"referencia":   {"Referencia", "Reference"},
	"metrica":      {"Métrica", "Metric"},
	"metricaid":    {"Métrica", "Metric"},
	"metricas":     {"Métricas", "Metrics"},
	"unidad":       {"Unidad", "Unit"},
	"criticidad":   {"Criticidad", "Criticality"},
	"criticidadid": {"Criticidad", "Criticality"},
	"grado":        {"Grado", "Grade"},
	"frecuencia":   {"Frecuencia", "Frequency"},
	"umbral":       {"Umbral", "Threshold"},
	"umbralid":     {"Umbral", "Threshold"},
	"minimo":       {"Mínimo", "Minimum"},
	"maximo":       {"Máximo", "Maximum"},
	"medio":        {"Medio", "Channel"},
	"medioid":      {"Medio", "Channel"},
	"nombre":       {"Nombre", "Name"},
	"perfil":       {"Perfil", "Profile"},
	"perfilid":     {"Perfil", "Profile"},
	"perfiles":     {"Perfiles", "Profiles"},
	"nivel":        {"Nivel", "Level"},
	"usuario":      {"Usuario", "User"},
	"usuarioid":    {"Usuario", "User"},
	"login":        {"Login", "Login"},
	"firstname":    {"Nombre", "First name"},
	"lastname":     {"Apellido", "Last name"},
	"celular":      {"Celular", "Mobile"},
	"correo":       {"Correo", "Email"},
}

// ColumnDisplayName returns the Spanish header for a column.
func ColumnDisplayName(column string) string {
	return ColumnDisplayNameTranslated(column, Spanish)
}

// ColumnDisplayNameTranslated returns the header for a column in lang,
// falling back to the column name with its first letter upper-cased.
func ColumnDisplayNameTranslated(column string, lang Lang) string {
	if c, ok := columnNames[strings.ToLower(column)]; ok {
		return c.in(lang)
	}
	return titleCase(column)
}

func titleCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
