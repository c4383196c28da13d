package ports

import (
	"context"

	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
)

// DesvioService is the business surface over the desvio lists.
type DesvioService interface {
	List(ctx context.Context, actor auth.Actor, q desvio.Query) (desvio.Rows, error)
	Motivos(ctx context.Context, actor auth.Actor, itemID int) (desvio.Location, []string, error)
	SubmitTratativa(ctx context.Context, actor auth.Actor, itemID int, t desvio.Tratativa) (desvio.Status, error)
	Review(ctx context.Context, actor auth.Actor, req desvio.ReviewRequest) (int, error)
}
