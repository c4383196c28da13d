package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
)

const (
	maxObservacoesLen   = 500
	maxPrevisaoDays     = 30
	minJustificativaLen = 10

	// motivoPlaceholder is what the UI dropdown sends when nothing was picked.
	motivoPlaceholder = "— Selecione —"
	motivoOutros      = "outros"

	// SharePointTimeLayout is how timestamps are written to list columns.
	SharePointTimeLayout = "2006-01-02T15:04:05"
)

var (
	previsaoLayouts = []string{"02/01/2006 15:04", "02/01/2006"}
	entradaLayouts  = []string{time.RFC3339, SharePointTimeLayout, "02/01/2006 15:04", "02/01/2006"}

	ErrForbidden = errors.New("operation not allowed for this profile")
)

// ValidationError carries every rule a request broke, in user-facing text.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// NormalizeMotivo trims the value and maps the dropdown placeholder to "".
func NormalizeMotivo(motivo string) string {
	motivo = strings.TrimSpace(motivo)
	if motivo == motivoPlaceholder {
		return ""
	}
	return motivo
}

// ParsePrevisao reads a release forecast typed as "dd/mm/yyyy HH:MM" or
// "dd/mm/yyyy" in loc.
func ParsePrevisao(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range previsaoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("previsão %q: formato inválido", s)
}

func parseEntrada(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range entradaLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidateTratativa checks a tratativa typed at now for a desvio of the given
// area that entered the yard at dataEntrada. The motivo must be one the area
// offers. A blank previsão is allowed and leaves the desvio pending.
func ValidateTratativa(t desvio.Tratativa, area desvio.Area, dataEntrada string, now time.Time, loc *time.Location) error {
	verr := &ValidationError{}
	motivo := NormalizeMotivo(t.Motivo)
	obs := strings.TrimSpace(t.Observacoes)

	switch {
	case motivo == "":
		verr.add("Motivo é obrigatório")
	case !area.AllowsMotivo(motivo):
		verr.add("Motivo %q não se aplica a este POI; opções: %s", motivo, strings.Join(area.Motivos(), ", "))
	}
	if strings.EqualFold(motivo, motivoOutros) && obs == "" {
		verr.add("Observação é obrigatória quando motivo é 'Outros'")
	}
	if utf8.RuneCountInString(obs) > maxObservacoesLen {
		verr.add("Observações não pode ter mais de %d caracteres", maxObservacoesLen)
	}

	if p := strings.TrimSpace(t.PrevisaoLiberacao); p != "" {
		previsao, err := ParsePrevisao(p, loc)
		if err != nil {
			verr.add("Previsão deve estar no formato dd/mm/aaaa hh:mm")
			return verr
		}
		local := now.In(loc)
		limit := time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, loc).AddDate(0, 0, maxPrevisaoDays)
		if previsao.After(limit) {
			verr.add("Data/hora não pode ser superior a %d dias no futuro", maxPrevisaoDays)
		}
		if entrada, ok := parseEntrada(dataEntrada, loc); ok && !previsao.After(entrada) {
			verr.add("Previsão deve ser posterior à data de entrada: %s", entrada.In(loc).Format("02/01/2006 15:04"))
		}
	}
	return verr.orNil()
}

// ValidateReview checks an approval or rejection request.
func ValidateReview(req desvio.ReviewRequest) error {
	verr := &ValidationError{}
	if len(req.ItemIDs) == 0 {
		verr.add("Nenhum desvio selecionado")
	}
	for _, id := range req.ItemIDs {
		if id <= 0 {
			verr.add("ID de desvio inválido: %d", id)
		}
	}
	switch req.Decision {
	case desvio.DecisionApprove:
	case desvio.DecisionReject:
		if utf8.RuneCountInString(strings.TrimSpace(req.Justificativa)) < minJustificativaLen {
			verr.add("Justificativa deve ter pelo menos %d caracteres", minJustificativaLen)
		}
	default:
		verr.add("Decisão inválida: %q", req.Decision)
	}
	return verr.orNil()
}
