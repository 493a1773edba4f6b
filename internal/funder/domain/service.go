package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service exposes read access to funder configuration.
type Service interface {
	List(ctx context.Context) ([]Funder, error)
	GetByID(ctx context.Context, id snowflake.ID) (Funder, error)
	ListRateCards(ctx context.Context, funderID snowflake.ID) ([]RateCard, error)
}

var (
	ErrNotFound = errors.New("funder_not_found")
)
