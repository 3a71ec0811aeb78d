package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/MarkoPoloResearchLab/bazaar/internal/grpcserver"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"gopkg.in/yaml.v3"
)

type priceSeedFile struct {
	Prices []priceSeed `yaml:"prices"`
}

type priceSeed struct {
	Item string  `yaml:"item"`
	Buy  *string `yaml:"buy"`
	Sell *string `yaml:"sell"`
}

type adminPriceSetter interface {
	SetAdminPrice(ctx context.Context, request *grpcserver.AdminPriceMessage, opts ...grpc.CallOption) (*grpcserver.AdminPriceMessage, error)
}

// parsePriceSeeds decodes a YAML seed file such as:
//
//	prices:
//	  - item: DIAMOND
//	    buy: "120"
//	    sell: "80.50"
func parsePriceSeeds(reader io.Reader) ([]grpcserver.AdminPriceMessage, error) {
	var file priceSeedFile
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode price seeds: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Prices))
	prices := make([]grpcserver.AdminPriceMessage, 0, len(file.Prices))
	for index, seed := range file.Prices {
		item := strings.ToUpper(strings.TrimSpace(seed.Item))
		if item == "" {
			return nil, fmt.Errorf("price %d: item is required", index)
		}
		if _, duplicate := seen[item]; duplicate {
			return nil, fmt.Errorf("price %d: duplicate item %s", index, item)
		}
		seen[item] = struct{}{}
		buy, err := parseSeedAmount(seed.Buy)
		if err != nil {
			return nil, fmt.Errorf("price %d (%s) buy: %w", index, item, err)
		}
		sell, err := parseSeedAmount(seed.Sell)
		if err != nil {
			return nil, fmt.Errorf("price %d (%s) sell: %w", index, item, err)
		}
		if buy == nil && sell == nil {
			return nil, fmt.Errorf("price %d (%s): buy or sell is required", index, item)
		}
		prices = append(prices, grpcserver.AdminPriceMessage{ItemType: item, BuyPrice: buy, SellPrice: sell})
	}
	return prices, nil
}

func parseSeedAmount(raw *string) (*decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

// importPrices pushes every seed through the running engine so its cached table stays current.
func importPrices(ctx context.Context, client adminPriceSetter, prices []grpcserver.AdminPriceMessage, logger *zap.Logger) error {
	for index := range prices {
		stored, err := client.SetAdminPrice(ctx, &prices[index])
		if err != nil {
			return fmt.Errorf("set price %s: %w", prices[index].ItemType, err)
		}
		logger.Info("admin price imported", zap.String("item_type", stored.ItemType))
	}
	return nil
}
