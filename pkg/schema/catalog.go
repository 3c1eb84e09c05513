package schema

// Table names of the Thermos schema.
const (
	TablePais          = "pais"
	TableEmpresa       = "empresa"
	TableFundo         = "fundo"
	TableUbicacion     = "ubicacion"
	TableEntidad       = "entidad"
	TableTipo          = "tipo"
	TableNodo          = "nodo"
	TableLocalizacion  = "localizacion"
	TableSensor        = "sensor"
	TableMetrica       = "metrica"
	TableMetricaSensor = "metricasensor"
	TableCriticidad    = "criticidad"
	TableUmbral        = "umbral"
	TableMedio         = "medio"
	TablePerfil        = "perfil"
	TableUsuario       = "usuario"
	TableUsuarioPerfil = "usuarioperfil"
	TableContacto      = "contacto"
	TablePerfilUmbral  = "perfilumbral"
)

// Issue codes produced by table checks.
const (
	IssueRange       = "range"
	IssueOneRequired = "one_required"
)

func fk(table string) ForeignKey {
	return ForeignKey{Column: table + PrimaryKeySuffix, References: table}
}

// Catalog returns fresh definitions of every Thermos table, ordered from the
// top of the hierarchy down.
func Catalog() []*Table {
	return []*Table{
		{
			Name:        TablePais,
			LabelField:  "pais",
			Required:    []string{"pais", "paisabrev"},
			Formats:     map[string]string{"paisabrev": "max=2"},
			NaturalKeys: [][]string{{"pais"}, {"paisabrev"}},
		},
		{
			Name:        TableEmpresa,
			LabelField:  "empresa",
			Required:    []string{"empresa", "empresabrev", "paisid"},
			Formats:     map[string]string{"empresabrev": "max=10"},
			NaturalKeys: [][]string{{"empresa"}, {"empresabrev"}},
			ForeignKeys: []ForeignKey{fk(TablePais)},
		},
		{
			Name:        TableFundo,
			LabelField:  "fundo",
			Required:    []string{"fundo", "fundoabrev", "empresaid"},
			Formats:     map[string]string{"fundoabrev": "max=10"},
			NaturalKeys: [][]string{{"fundo", "empresaid"}},
			ForeignKeys: []ForeignKey{fk(TableEmpresa)},
		},
		{
			Name:        TableUbicacion,
			LabelField:  "ubicacion",
			Required:    []string{"ubicacion", "fundoid"},
			NaturalKeys: [][]string{{"ubicacion", "fundoid"}},
			ForeignKeys: []ForeignKey{fk(TableFundo)},
		},
		{
			Name:        TableEntidad,
			LabelField:  "entidad",
			Required:    []string{"entidad"},
			NaturalKeys: [][]string{{"entidad"}},
		},
		{
			Name:        TableTipo,
			LabelField:  "tipo",
			Required:    []string{"tipo", "entidadid"},
			NaturalKeys: [][]string{{"tipo", "entidadid"}},
			ForeignKeys: []ForeignKey{fk(TableEntidad)},
		},
		{
			Name:        TableNodo,
			LabelField:  "nodo",
			Required:    []string{"nodo"},
			Formats:     map[string]string{"deveui": "hexadecimal,len=16"},
			NaturalKeys: [][]string{{"nodo"}, {"deveui"}},
		},
		{
			Name:       TableLocalizacion,
			LabelField: "referencia",
			Required:   []string{"ubicacionid", "nodoid", "entidadid"},
			Formats: map[string]string{
				"latitud":  "latitude",
				"longitud": "longitude",
			},
			NaturalKeys: [][]string{{"nodoid"}},
			ForeignKeys: []ForeignKey{fk(TableUbicacion), fk(TableNodo), fk(TableEntidad)},
		},
		{
			Name:        TableSensor,
			Required:    []string{"nodoid", "tipoid"},
			NaturalKeys: [][]string{{"nodoid", "tipoid"}},
			ForeignKeys: []ForeignKey{fk(TableNodo), fk(TableTipo)},
		},
		{
			Name:        TableMetrica,
			LabelField:  "metrica",
			Required:    []string{"metrica", "unidad"},
			NaturalKeys: [][]string{{"metrica"}},
		},
		{
			Name:        TableMetricaSensor,
			Required:    []string{"nodoid", "tipoid", "metricaid"},
			NaturalKeys: [][]string{{"nodoid", "tipoid", "metricaid"}},
			ForeignKeys: []ForeignKey{fk(TableNodo), fk(TableTipo), fk(TableMetrica)},
		},
		{
			Name:        TableCriticidad,
			LabelField:  "criticidad",
			Required:    []string{"criticidad", "grado"},
			Formats:     map[string]string{"grado": "numeric", "frecuencia": "numeric"},
			NaturalKeys: [][]string{{"criticidad"}},
		},
		{
			Name:       TableUmbral,
			LabelField: "umbral",
			Required: []string{
				"umbral", "ubicacionid", "nodoid", "tipoid",
				"metricaid", "criticidadid", "minimo", "maximo",
			},
			Formats:     map[string]string{"minimo": "numeric", "maximo": "numeric"},
			NaturalKeys: [][]string{{"ubicacionid", "nodoid", "tipoid", "metricaid"}},
			ForeignKeys: []ForeignKey{
				fk(TableUbicacion), fk(TableNodo), fk(TableTipo),
				fk(TableMetrica), fk(TableCriticidad),
			},
			Check: checkThresholdRange,
		},
		{
			Name:        TableMedio,
			LabelField:  "nombre",
			Required:    []string{"nombre"},
			NaturalKeys: [][]string{{"nombre"}},
		},
		{
			Name:        TablePerfil,
			LabelField:  "perfil",
			Required:    []string{"perfil", "nivel"},
			Formats:     map[string]string{"nivel": "numeric"},
			NaturalKeys: [][]string{{"perfil"}},
		},
		{
			Name:        TableUsuario,
			LabelField:  "login",
			Required:    []string{"login", "firstname", "lastname"},
			Formats:     map[string]string{"login": "email"},
			NaturalKeys: [][]string{{"login"}},
		},
		{
			Name:        TableUsuarioPerfil,
			Required:    []string{"usuarioid", "perfilid"},
			NaturalKeys: [][]string{{"usuarioid", "perfilid"}},
			ForeignKeys: []ForeignKey{fk(TableUsuario), fk(TablePerfil)},
		},
		{
			Name:        TableContacto,
			LabelField:  "correo",
			Required:    []string{"usuarioid", "medioid"},
			Formats:     map[string]string{"celular": "numeric", "correo": "email"},
			NaturalKeys: [][]string{{"usuarioid", "medioid"}},
			ForeignKeys: []ForeignKey{fk(TableUsuario), fk(TableMedio)},
			Check:       checkContactChannel,
		},
		{
			Name:        TablePerfilUmbral,
			Required:    []string{"perfilid", "umbralid"},
			NaturalKeys: [][]string{{"perfilid", "umbralid"}},
			ForeignKeys: []ForeignKey{fk(TablePerfil), fk(TableUmbral)},
		},
	}
}

// checkThresholdRange rejects thresholds whose minimum exceeds the maximum.
func checkThresholdRange(row Row) []Issue {
	lo, okLo := ToFloat64(row["minimo"])
	hi, okHi := ToFloat64(row["maximo"])
	if !okLo || !okHi {
		return nil
	}
	if lo > hi {
		return []Issue{{Field: "maximo", Code: IssueRange, Params: []any{"minimo", "maximo"}}}
	}
	return nil
}

// checkContactChannel requires a phone or an email on every contact.
func checkContactChannel(row Row) []Issue {
	if row.IsBlank("celular") && row.IsBlank("correo") {
		return []Issue{{Field: "correo", Code: IssueOneRequired, Params: []any{"celular", "correo"}}}
	}
	return nil
}
