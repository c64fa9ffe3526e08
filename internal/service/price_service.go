package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"agent-arena/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

// Cache entries outlive one poll interval so a slow or failed refresh does
// not leave the pipeline priceless mid-cycle.
const priceCacheTTL = 10 * time.Minute

type QuoteProvider interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

type priceSnapshot struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// PriceService serves watch-list quotes through a Redis cache in front of the
// market data provider.
type PriceService struct {
	tracer   trace.Tracer
	provider QuoteProvider
	redis    RedisClient
}

func NewPriceService(tracer trace.Tracer, provider QuoteProvider, redisClient RedisClient) *PriceService {
	return &PriceService{
		tracer:   tracer,
		provider: provider,
		redis:    redisClient,
	}
}

// GetPrice returns the latest price for a watch-list symbol, from cache when
// fresh, otherwise fetched live and cached.
func (s *PriceService) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	_, span := s.tracer.Start(ctx, "price-service.get-price")
	defer span.End()

	if !domain.Tracked(symbol) {
		return decimal.Zero, fmt.Errorf("unsupported symbol: %s", symbol)
	}
	return s.quote(ctx, symbol)
}

// quote is the ungated cache-then-live path. Holdings can outlive the
// watch-list, and their liquidation still needs a market price.
func (s *PriceService) quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if s.redis != nil {
		cached, err := s.getPriceCache(ctx, symbol)
		if err != nil {
			log.Printf("redis cache read error: %v", err)
		}
		if cached != nil {
			return cached.Price, nil
		}
	}

	price, err := s.provider.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	snap := &priceSnapshot{Symbol: symbol, Price: decimal.NewFromFloat(price), FetchedAt: time.Now().UTC()}
	if s.redis != nil {
		if err := s.setPriceCache(ctx, snap); err != nil {
			log.Printf("redis cache write error for %s: %v", symbol, err)
		}
	}
	return snap.Price, nil
}

// PriceMap resolves prices for the given symbols, skipping the ones whose
// quote could not be fetched. The caller decides whether a partial map is
// acceptable. Symbols are quoted whether or not they are on the watch-list,
// so held positions of dropped symbols sell at market rather than cost basis.
func (s *PriceService) PriceMap(ctx context.Context, symbols []string) map[string]decimal.Decimal {
	ctx, span := s.tracer.Start(ctx, "price-service.price-map")
	defer span.End()

	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		price, err := s.quote(ctx, symbol)
		if err != nil {
			log.Printf("Warning: no price for %s: %v", symbol, err)
			continue
		}
		prices[symbol] = price
	}
	return prices
}

// RefreshPrices warms the cache for the whole watch-list. Called by the
// price poller job.
func (s *PriceService) RefreshPrices(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "price-service.refresh-prices")
	defer span.End()

	refreshed := 0
	for _, symbol := range domain.Watchlist {
		price, err := s.provider.GetCurrentPrice(ctx, symbol)
		if err != nil {
			log.Printf("Warning: refresh price for %s: %v", symbol, err)
			continue
		}
		snap := &priceSnapshot{Symbol: symbol, Price: decimal.NewFromFloat(price), FetchedAt: time.Now().UTC()}
		if s.redis != nil {
			if err := s.setPriceCache(ctx, snap); err != nil {
				log.Printf("redis cache write error for %s: %v", symbol, err)
				continue
			}
		}
		refreshed++
	}

	if refreshed == 0 {
		return fmt.Errorf("refreshed 0 of %d watch-list prices", len(domain.Watchlist))
	}
	log.Printf("Refreshed prices for %d symbols", refreshed)
	return nil
}

func (s *PriceService) setPriceCache(ctx context.Context, snap *priceSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, "price:"+snap.Symbol, data, priceCacheTTL).Err()
}

func (s *PriceService) getPriceCache(ctx context.Context, symbol string) (*priceSnapshot, error) {
	data, err := s.redis.Get(ctx, "price:"+symbol).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap priceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
