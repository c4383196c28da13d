package desvio

// Tratativa is the remediation note a user attaches to a desvio.
type Tratativa struct {
	Motivo            string `json:"motivo"`
	PrevisaoLiberacao string `json:"previsao_liberacao"`
	Observacoes       string `json:"observacoes"`
}

// Fields returns the tratativa as SharePoint columns.
func (t Tratativa) Fields() Record {
	return Record{
		FieldMotivo:      t.Motivo,
		FieldPrevisao:    t.PrevisaoLiberacao,
		FieldObservacoes: t.Observacoes,
	}
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ReviewRequest approves or rejects a set of desvio items.
type ReviewRequest struct {
	ItemIDs       []int    `json:"item_ids"`
	Decision      Decision `json:"decision"`
	Justificativa string   `json:"justificativa,omitempty"`
}

// Status maps the decision to the list status column.
func (d Decision) Status() Status {
	if d == DecisionReject {
		return StatusReprovado
	}
	return StatusAprovado
}
