package services_test

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
)

var campoGrande = mustLocation("America/Campo_Grande")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func validationErrors(t *testing.T, err error) []string {
	t.Helper()
	var verr *services.ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Errors
}

func TestValidateTratativa(t *testing.T) {
	now := time.Date(2024, 6, 10, 14, 0, 0, 0, campoGrande)

	cases := []struct {
		name    string
		in      desvio.Tratativa
		entrada string
		wantErr string
	}{
		{name: "complete", in: desvio.Tratativa{Motivo: "Falta de Máquina", PrevisaoLiberacao: "11/06/2024 08:30"}},
		{name: "date only", in: desvio.Tratativa{Motivo: "Falta de Máquina", PrevisaoLiberacao: "11/06/2024"}},
		{name: "no previsao", in: desvio.Tratativa{Motivo: "Falta de Máquina"}},
		{name: "motivo missing", in: desvio.Tratativa{}, wantErr: "Motivo é obrigatório"},
		{name: "motivo of another area", in: desvio.Tratativa{Motivo: "Janela de Descarga"}, wantErr: "não se aplica a este POI"},
		{name: "motivo ignores case", in: desvio.Tratativa{Motivo: " falta de MÁQUINA "}},
		{name: "placeholder is missing", in: desvio.Tratativa{Motivo: "— Selecione —"}, wantErr: "Motivo é obrigatório"},
		{name: "outros needs observacao", in: desvio.Tratativa{Motivo: "OUTROS", Observacoes: "  "}, wantErr: "Observação é obrigatória"},
		{name: "outros with observacao", in: desvio.Tratativa{Motivo: "Outros", Observacoes: "pneu furado"}},
		{name: "observacoes too long", in: desvio.Tratativa{Motivo: "Outros", Observacoes: strings.Repeat("ã", 501)}, wantErr: "500 caracteres"},
		{name: "observacoes at limit", in: desvio.Tratativa{Motivo: "Outros", Observacoes: strings.Repeat("ã", 500)}},
		{name: "bad format", in: desvio.Tratativa{Motivo: "Falta de Máquina", PrevisaoLiberacao: "2024-06-11"}, wantErr: "formato dd/mm/aaaa"},
		{name: "last allowed day", in: desvio.Tratativa{Motivo: "Falta de Máquina", PrevisaoLiberacao: "10/07/2024 23:59"}},
		{name: "too far", in: desvio.Tratativa{Motivo: "Falta de Máquina", PrevisaoLiberacao: "11/07/2024 00:00"}, wantErr: "30 dias"},
		{name: "before entrada", in: desvio.Tratativa{Motivo: "Falta de Máquina", PrevisaoLiberacao: "09/06/2024 10:00"}, entrada: "2024-06-09T12:00:00", wantErr: "posterior à data de entrada"},
		{name: "after entrada", in: desvio.Tratativa{Motivo: "Falta de Máquina", PrevisaoLiberacao: "09/06/2024 13:00"}, entrada: "2024-06-09T12:00:00"},
		{name: "unparseable entrada ignored", in: desvio.Tratativa{Motivo: "Falta de Máquina", PrevisaoLiberacao: "09/06/2024 13:00"}, entrada: "ontem"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := services.ValidateTratativa(tc.in, desvio.AreaFabrica, tc.entrada, now, campoGrande)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			errs := validationErrors(t, err)
			assert.Contains(t, strings.Join(errs, "\n"), tc.wantErr)
		})
	}
}

func TestValidateTratativa_CollectsEveryError(t *testing.T) {
	err := services.ValidateTratativa(desvio.Tratativa{Observacoes: strings.Repeat("x", 600)}, desvio.AreaFabrica, "", time.Now(), time.UTC)
	assert.Len(t, validationErrors(t, err), 2)
}

func TestValidateTratativa_UnknownPOIOnlyTakesOutros(t *testing.T) {
	now := time.Now()
	require.NoError(t, services.ValidateTratativa(desvio.Tratativa{Motivo: "Outros", Observacoes: "balança parada"}, desvio.AreaOutros, "", now, time.UTC))

	errs := validationErrors(t, services.ValidateTratativa(desvio.Tratativa{Motivo: "Falta de Máquina"}, desvio.AreaOutros, "", now, time.UTC))
	assert.Equal(t, []string{`Motivo "Falta de Máquina" não se aplica a este POI; opções: Outros`}, errs)
}

func TestParsePrevisao(t *testing.T) {
	got, err := services.ParsePrevisao(" 11/06/2024 08:30 ", campoGrande)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-11T08:30:00", got.Format(services.SharePointTimeLayout))
	assert.Equal(t, campoGrande, got.Location())

	_, err = services.ParsePrevisao("31/02/2024", campoGrande)
	require.Error(t, err)
}

func TestValidateReview(t *testing.T) {
	require.NoError(t, services.ValidateReview(desvio.ReviewRequest{ItemIDs: []int{1, 2}, Decision: desvio.DecisionApprove}))
	require.NoError(t, services.ValidateReview(desvio.ReviewRequest{ItemIDs: []int{1}, Decision: desvio.DecisionReject, Justificativa: "placa divergente"}))

	errs := validationErrors(t, services.ValidateReview(desvio.ReviewRequest{ItemIDs: []int{1}, Decision: desvio.DecisionReject, Justificativa: " curta    "}))
	assert.Equal(t, []string{"Justificativa deve ter pelo menos 10 caracteres"}, errs)

	errs = validationErrors(t, services.ValidateReview(desvio.ReviewRequest{ItemIDs: []int{0}, Decision: "maybe"}))
	assert.Len(t, errs, 2)

	errs = validationErrors(t, services.ValidateReview(desvio.ReviewRequest{Decision: desvio.DecisionApprove}))
	assert.Equal(t, []string{"Nenhum desvio selecionado"}, errs)
}
