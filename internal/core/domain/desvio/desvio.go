package desvio

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// SharePoint column names used by the service. Anything else in a Record is
// carried through untouched.
const (
	FieldID                = "ID"
	FieldTitle             = "Title"
	FieldTitulo            = "Titulo"
	FieldStatus            = "Status"
	FieldDescricao         = "Descricao"
	FieldPlaca             = "Placa"
	FieldPOI               = "POI"
	FieldDataEntrada       = "Data_Entrada"
	FieldMotivo            = "Motivo"
	FieldPrevisao          = "Previsao_Liberacao"
	FieldObservacoes       = "Observacoes"
	FieldPreenchidoPor     = "Preenchido_por"
	FieldDataPreenchimento = "Data_Preenchimento"
	FieldAprovadoPor       = "Aprovado_por"
	FieldDataAprovacao     = "Data_Aprovacao"
	FieldReprova           = "Reprova"
	FieldCriado            = "Criado"
	FieldCreated           = "Created"
)

type Status string

const (
	StatusPendente   Status = "Pendente"
	StatusPreenchido Status = "Preenchido"
	StatusAprovado   Status = "Aprovado"
	StatusReprovado  Status = "Reprovado"
	// StatusNaoTratado closes an event nobody handled in time.
	StatusNaoTratado Status = "Não Tratado"
)

// Closed reports whether the status ends the event's life: no more
// tratativas, reviews or automatic changes.
func (s Status) Closed() bool {
	return s == StatusAprovado || s == StatusNaoTratado
}

// CreatedAt returns the raw creation stamp, from the localized column when present.
func (r Record) CreatedAt() string {
	if v := r.String(FieldCriado); v != "" {
		return v
	}
	return r.String(FieldCreated)
}

// Record is one SharePoint list item as a flat map of named fields.
type Record map[string]any

// ID returns the numeric item id, or 0 when the record has none.
func (r Record) ID() int {
	switch v := r[FieldID].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		id, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return id
	}
	return 0
}

// String returns the field as trimmed text; nil and "None" read as empty.
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if strings.EqualFold(s, "none") {
		return ""
	}
	return s
}

// Clone copies the top-level map. Values are shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Rows is a snapshot of a list.
type Rows []Record

func (rs Rows) Clone() Rows {
	if rs == nil {
		return nil
	}
	out := make(Rows, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

// FindByID returns the record with the given item id.
func (rs Rows) FindByID(id int) (Record, bool) {
	for _, r := range rs {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// Query selects items of a list. Zero Limit means the data source default.
type Query struct {
	Dataset string `json:"dataset"`
	Filter  string `json:"filter,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Params returns the query parameters that take part in the cache key.
func (q Query) Params() map[string]string {
	p := map[string]string{}
	if q.Filter != "" {
		p["filter"] = q.Filter
	}
	if q.Limit > 0 {
		p["limit"] = strconv.Itoa(q.Limit)
	}
	return p
}

// Key is the cache key of the query.
func (q Query) Key() (string, error) {
	return NewKey(q.Dataset, q.Params())
}

// EventStatus is Preenchido when every record of an event has both motivo and
// previsão filled, Pendente otherwise.
func EventStatus(records Rows) Status {
	if len(records) == 0 {
		return StatusPendente
	}
	for _, r := range records {
		motivo := r.String(FieldMotivo)
		if motivo == "— Selecione —" {
			motivo = ""
		}
		if motivo == "" || r.String(FieldPrevisao) == "" {
			return StatusPendente
		}
	}
	return StatusPreenchido
}
