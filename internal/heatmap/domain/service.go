package domain

import "context"

type Service interface {
	Aggregate(context.Context, Request) (*Grid, error)
	Correlate(context.Context, CorrelateRequest) (*Correlation, error)
}
