package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/account"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/errors"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/pkg/conn"
)

type positionRecord struct {
	ID            string          `gorm:"primaryKey"`
	Ticker        string          `gorm:"index"`
	Side          string
	EntryPrice    decimal.Decimal `gorm:"type:numeric"`
	Size          decimal.Decimal `gorm:"type:numeric"`
	Status        string          `gorm:"index"`
	Strategy      string
	StopLoss      decimal.Decimal `gorm:"type:numeric"`
	ProfitTarget  decimal.Decimal `gorm:"type:numeric"`
	OpenedAt      time.Time
	ClosedAt      time.Time
	RealizedPnL   decimal.Decimal `gorm:"type:numeric"`
	CloseFailures int
	UpdatedAt     time.Time
}

func (positionRecord) TableName() string { return "positions" }

type decisionRecord struct {
	ID         uint            `gorm:"primaryKey;autoIncrement"`
	Ticker     string          `gorm:"index"`
	Side       string
	Strategy   string
	Estimate   decimal.Decimal `gorm:"type:numeric"`
	Confidence decimal.Decimal `gorm:"type:numeric"`
	Edge       decimal.Decimal `gorm:"type:numeric"`
	YesPrice   decimal.Decimal `gorm:"type:numeric"`
	CreatedAt  time.Time
}

func (decisionRecord) TableName() string { return "decisions" }

type accountRecord struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	Balance   decimal.Decimal `gorm:"type:numeric"`
	Reserved  decimal.Decimal `gorm:"type:numeric"`
	Exposure  decimal.Decimal `gorm:"type:numeric"`
	Committed int
	CreatedAt time.Time
}

func (accountRecord) TableName() string { return "account_snapshots" }

// Postgres journals positions and decisions through a shared gorm pool.
type Postgres struct {
	client *conn.Client
}

// NewPostgres connects with the given DSN and migrates the journal tables.
func NewPostgres(dsn string) (*Postgres, error) {
	client, err := conn.New(conn.Option{ConnString: dsn})
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := client.DB().AutoMigrate(&positionRecord{}, &decisionRecord{}, &accountRecord{}); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "migrate journal tables")
	}
	return &Postgres{client: client}, nil
}

func (s *Postgres) SavePosition(ctx context.Context, p model.Position) error {
	rec := positionRecord{
		ID:            p.ID,
		Ticker:        p.Ticker,
		Side:          p.Side.String(),
		EntryPrice:    p.EntryPrice,
		Size:          p.Size,
		Status:        p.Status.String(),
		Strategy:      p.Strategy.String(),
		StopLoss:      p.StopLoss,
		ProfitTarget:  p.ProfitTarget,
		OpenedAt:      p.OpenedAt,
		ClosedAt:      p.ClosedAt,
		RealizedPnL:   p.RealizedPnL,
		CloseFailures: p.CloseFailures,
	}
	return s.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
}

func (s *Postgres) OpenPositions(ctx context.Context) ([]model.Position, error) {
	var recs []positionRecord
	err := s.client.DB().WithContext(ctx).
		Where("status IN ?", []string{
			model.PositionPending.String(),
			model.PositionOpen.String(),
			model.PositionClosing.String(),
		}).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	positions := make([]model.Position, 0, len(recs))
	for _, rec := range recs {
		positions = append(positions, rec.toModel())
	}
	return positions, nil
}

func (s *Postgres) RecordDecision(ctx context.Context, d model.Decision) error {
	rec := decisionRecord{
		Ticker:     d.Market.Ticker,
		Side:       d.Side.String(),
		Strategy:   d.Strategy.String(),
		Estimate:   d.Estimate,
		Confidence: d.Confidence,
		Edge:       d.Edge,
		YesPrice:   d.Market.YesPrice,
	}
	return s.client.DB().WithContext(ctx).Create(&rec).Error
}

func (s *Postgres) SaveAccountView(ctx context.Context, v account.View) error {
	rec := accountRecord{
		Balance:   v.Balance,
		Reserved:  v.Reserved,
		Exposure:  v.Exposure,
		Committed: v.CommittedCount,
	}
	return s.client.DB().WithContext(ctx).Create(&rec).Error
}

func (s *Postgres) Close() error {
	return s.client.Close()
}

func (rec positionRecord) toModel() model.Position {
	return model.Position{
		ID:            rec.ID,
		Ticker:        rec.Ticker,
		Side:          parseSide(rec.Side),
		EntryPrice:    rec.EntryPrice,
		Size:          rec.Size,
		Status:        parseStatus(rec.Status),
		Strategy:      parseStrategy(rec.Strategy),
		StopLoss:      rec.StopLoss,
		ProfitTarget:  rec.ProfitTarget,
		OpenedAt:      rec.OpenedAt,
		ClosedAt:      rec.ClosedAt,
		RealizedPnL:   rec.RealizedPnL,
		CloseFailures: rec.CloseFailures,
	}
}

func parseSide(s string) model.Side {
	switch s {
	case model.SideYes.String():
		return model.SideYes
	case model.SideNo.String():
		return model.SideNo
	default:
		return model.SideUnknown
	}
}

func parseStatus(s string) model.PositionStatus {
	for _, status := range []model.PositionStatus{
		model.PositionPending,
		model.PositionOpen,
		model.PositionClosing,
		model.PositionClosed,
		model.PositionCancelled,
		model.PositionNeedsAttention,
	} {
		if status.String() == s {
			return status
		}
	}
	return model.PositionPending
}

func parseStrategy(s string) model.Strategy {
	strategy, ok := model.ParseStrategy(s)
	if !ok {
		return model.StrategyDirectional
	}
	return strategy
}

var _ Store = (*Postgres)(nil)
