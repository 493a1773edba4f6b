package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	funderdomain "github.com/carebridge/billing/internal/funder/domain"
	"github.com/carebridge/billing/pkg/db/option"
	"github.com/carebridge/billing/pkg/repository"
)

type Service struct {
	log *zap.Logger

	funderRepo repository.Repository[funderdomain.Funder]
	cardRepo   repository.Repository[funderdomain.RateCard]
	lineRepo   repository.Repository[funderdomain.RateLine]
	mileRepo   repository.Repository[funderdomain.MileageRate]
}

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewService(p ServiceParam) funderdomain.Service {
	return &Service{
		log: p.Log.Named("funder.service"),

		funderRepo: repository.ProvideStore[funderdomain.Funder](p.DB),
		cardRepo:   repository.ProvideStore[funderdomain.RateCard](p.DB),
		lineRepo:   repository.ProvideStore[funderdomain.RateLine](p.DB),
		mileRepo:   repository.ProvideStore[funderdomain.MileageRate](p.DB),
	}
}

func (s *Service) List(ctx context.Context) ([]funderdomain.Funder, error) {
	items, err := s.funderRepo.Find(ctx, &funderdomain.Funder{}, option.WithOrder("name ASC"))
	if err != nil {
		return nil, err
	}

	funders := make([]funderdomain.Funder, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		funders = append(funders, *item)
	}
	return funders, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (funderdomain.Funder, error) {
	funder, err := s.funderRepo.FindOne(ctx, &funderdomain.Funder{ID: id})
	if err != nil {
		return funderdomain.Funder{}, err
	}
	if funder == nil {
		return funderdomain.Funder{}, funderdomain.ErrNotFound
	}
	return *funder, nil
}

func (s *Service) ListRateCards(ctx context.Context, funderID snowflake.ID) ([]funderdomain.RateCard, error) {
	cards, err := s.cardRepo.Find(ctx, &funderdomain.RateCard{FunderID: &funderID},
		option.WithOrder("effective_from DESC"))
	if err != nil {
		return nil, err
	}

	out := make([]funderdomain.RateCard, 0, len(cards))
	for _, card := range cards {
		if card == nil {
			continue
		}
		lines, err := s.lineRepo.Find(ctx, &funderdomain.RateLine{RateCardID: card.ID},
			option.WithOrder("day_type ASC, band_start ASC"))
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			card.Lines = append(card.Lines, *line)
		}
		mileage, err := s.mileRepo.FindOne(ctx, &funderdomain.MileageRate{RateCardID: card.ID})
		if err != nil {
			return nil, err
		}
		card.MileageRate = mileage
		out = append(out, *card)
	}
	return out, nil
}
