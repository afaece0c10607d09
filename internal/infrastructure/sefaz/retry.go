package sefaz

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/cte-api/internal/domain"
	"github.com/jhoicas/cte-api/pkg/logger"
)

// RetryPolicy novas tentativas apenas para falhas transitórias. Delays[i] é a espera
// antes da tentativa i+2; Attempts inclui a primeira chamada.
type RetryPolicy struct {
	Attempts int
	Delays   []time.Duration
}

// DefaultRetryPolicy 3 tentativas; esperas de 1s, 2s e 4s conforme o número de tentativas configurado.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delays: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}}
}

// NoRetry uma única tentativa.
func NoRetry() RetryPolicy { return RetryPolicy{Attempts: 1} }

func (p RetryPolicy) delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt < len(p.Delays) {
		return p.Delays[attempt]
	}
	return p.Delays[len(p.Delays)-1]
}

// do executa fn repetindo somente enquanto o erro for transitório.
func (p RetryPolicy) do(ctx context.Context, log *logger.Logger, op string, fn func(context.Context) (*Response, error)) (*Response, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !domain.IsTransient(err) || attempt == attempts-1 {
			break
		}
		wait := p.delay(attempt)
		log.Warn().Err(err).Str("op", op).Int("tentativa", attempt+1).Dur("espera", wait).Msg("falha transitória, tentando novamente")

		select {
		case <-ctx.Done():
			return nil, &domain.GatewayError{Op: op, Transient: true, Err: fmt.Errorf("contexto cancelado durante nova tentativa: %w", ctx.Err())}
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}
