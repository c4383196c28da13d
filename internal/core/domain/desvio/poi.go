package desvio

import (
	"slices"
	"strings"
)

// Site codes found in event titles, e.g. "RRP_CarregamentoFabricaRRP_N1_24072025_153000".
const (
	SiteRRP = "RRP"
	SiteTLS = "TLS"
)

// Area is the kind of point of interest an event happened at. User areas
// and motivos are both keyed by it.
type Area string

const (
	AreaPAAguaClara Area = "pa_agua_clara"
	AreaManutencao  Area = "manutencao"
	AreaTerminal    Area = "terminal"
	AreaFabrica     Area = "fabrica"
	AreaOutros      Area = "outros"
)

// Checked in order: a POI naming both a terminal and a factory is a terminal.
var areaKeywords = []struct {
	area  Area
	words []string
}{
	{AreaPAAguaClara, []string{"p.a.", "agua clara", "água clara", "aguaclara", "águaclara"}},
	{AreaManutencao, []string{"oficina", "manutenção", "manutencao"}},
	{AreaTerminal, []string{"terminal", "inocência", "inocencia", "descarga"}},
	{AreaFabrica, []string{"fábrica", "fabrica", "carregamento"}},
}

// User areas that see every POI.
var wildcardAreas = []string{"geral", "all", "todos", "todas"}

var areaMotivos = map[Area][]string{
	AreaPAAguaClara: {
		"Atestado Motorista",
		"Brecha na escala",
		"Ciclo Antecipado - Aguardando Motorista",
		"Falta Motorista",
		"Outros",
		"Refeição",
		"Socorro Mecânico",
	},
	AreaManutencao: {
		"Corretiva",
		"Falta Mecânico",
		"Falta Material",
		"Inspeção",
		"Lavagem",
		"Preventiva",
		"Outros",
	},
	AreaTerminal: {
		"Chegada em Comboio",
		"Falta de Espaço",
		"Falta de Máquina",
		"Falta de Operador",
		"Janela de Descarga",
		"Prioridade Ferrovia",
		"Outros",
	},
	AreaFabrica: {
		"Chegada em Comboio",
		"Emissão Nota Fiscal",
		"Falta de Máquina",
		"Falta de Material",
		"Falta de Operador",
		"Janela Carregamento",
		"Outros",
		"Restrição de Tráfego",
	},
	AreaOutros: {"Outros"},
}

// ClassifyArea maps a POI or a user area name to its Area.
func ClassifyArea(name string) Area {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return AreaOutros
	}
	for _, k := range areaKeywords {
		for _, w := range k.words {
			if strings.Contains(n, w) {
				return k.area
			}
		}
	}
	return AreaOutros
}

// Motivos lists the motivos a tratativa may pick for the area.
func (a Area) Motivos() []string {
	m, ok := areaMotivos[a]
	if !ok {
		m = areaMotivos[AreaOutros]
	}
	return slices.Clone(m)
}

// AllowsMotivo compares ignoring case and surrounding blanks.
func (a Area) AllowsMotivo(motivo string) bool {
	motivo = strings.TrimSpace(motivo)
	for _, m := range a.Motivos() {
		if strings.EqualFold(m, motivo) {
			return true
		}
	}
	return false
}

func siteOf(s string) string {
	u := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(u, SiteRRP+"_"):
		return SiteRRP
	case strings.HasPrefix(u, SiteTLS+"_"):
		return SiteTLS
	case strings.Contains(u, SiteRRP):
		return SiteRRP
	case strings.Contains(u, SiteTLS):
		return SiteTLS
	}
	return ""
}

// Location is where an event happened.
type Location struct {
	Site string `json:"site,omitempty"`
	POI  string `json:"poi,omitempty"`
	Area Area   `json:"area"`
}

// EventTitle is the title shared by every record of an event.
func (r Record) EventTitle() string {
	if t := r.String(FieldTitle); t != "" {
		return t
	}
	return r.String(FieldTitulo)
}

// LocationOf reads the POI column, or the second part of a
// SITE_POI_TIPO_DATA_HORA title when the column is empty.
func LocationOf(r Record) Location {
	title := r.EventTitle()
	poi := r.String(FieldPOI)
	if poi == "" {
		if parts := strings.Split(title, "_"); len(parts) >= 5 {
			poi = parts[1]
		}
	}
	site := siteOf(title)
	if site == "" {
		site = siteOf(poi)
	}
	return Location{Site: site, POI: poi, Area: ClassifyArea(poi)}
}

// VisibleTo reports whether a user holding areas may see and act on events
// at l. An area names a kind of POI and optionally a site ("Fábrica RRP");
// without a site it covers every site. POIs of no known kind are only
// visible to the wildcard areas.
func (l Location) VisibleTo(areas []string) bool {
	for _, a := range areas {
		n := strings.ToLower(strings.TrimSpace(a))
		if n == "" {
			continue
		}
		if slices.Contains(wildcardAreas, n) {
			return true
		}
		if l.Area == AreaOutros || ClassifyArea(n) != l.Area {
			continue
		}
		if site := siteOf(n); site != "" && l.Site != "" && site != l.Site {
			continue
		}
		return true
	}
	return false
}
