package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MarkoPoloResearchLab/bazaar/internal/grpcserver"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type recordingPriceSetter struct {
	received []grpcserver.AdminPriceMessage
	failOn   string
}

func (setter *recordingPriceSetter) SetAdminPrice(_ context.Context, request *grpcserver.AdminPriceMessage, _ ...grpc.CallOption) (*grpcserver.AdminPriceMessage, error) {
	if request.ItemType == setter.failOn {
		return nil, errors.New("engine unavailable")
	}
	setter.received = append(setter.received, *request)
	return request, nil
}

func TestParsePriceSeeds(test *testing.T) {
	test.Parallel()
	prices, err := parsePriceSeeds(strings.NewReader(`
prices:
  - item: diamond
    buy: "120"
    sell: "80.50"
  - item: WHEAT
    buy: "2"
  - item: " cobblestone "
    sell: "0.25"
`))
	if err != nil {
		test.Fatalf("parse: %v", err)
	}
	if len(prices) != 3 {
		test.Fatalf("expected 3 prices, got %d", len(prices))
	}
	if prices[0].ItemType != "DIAMOND" || !prices[0].SellPrice.Equal(decimal.RequireFromString("80.50")) {
		test.Fatalf("unexpected diamond price %+v", prices[0])
	}
	if prices[1].SellPrice != nil || !prices[1].BuyPrice.Equal(decimal.NewFromInt(2)) {
		test.Fatalf("wheat should only be buyable, got %+v", prices[1])
	}
	if prices[2].ItemType != "COBBLESTONE" || prices[2].BuyPrice != nil {
		test.Fatalf("unexpected cobblestone price %+v", prices[2])
	}
}

func TestParsePriceSeedsRejectsBadInput(test *testing.T) {
	test.Parallel()
	testCases := map[string]string{
		"missing item":  "prices:\n  - buy: \"1\"\n",
		"no prices":     "prices:\n  - item: STONE\n",
		"bad decimal":   "prices:\n  - item: STONE\n    buy: cheap\n",
		"duplicate":     "prices:\n  - item: STONE\n    buy: \"1\"\n  - item: stone\n    sell: \"1\"\n",
		"unknown field": "prices:\n  - item: STONE\n    buy: \"1\"\n    cost: \"2\"\n",
	}
	for name, document := range testCases {
		if _, err := parsePriceSeeds(strings.NewReader(document)); err == nil {
			test.Fatalf("%s: expected error", name)
		}
	}
}

func TestImportPricesStopsAtFirstFailure(test *testing.T) {
	test.Parallel()
	buy := decimal.NewFromInt(3)
	prices := []grpcserver.AdminPriceMessage{
		{ItemType: "STONE", BuyPrice: &buy},
		{ItemType: "IRON", BuyPrice: &buy},
		{ItemType: "GOLD", BuyPrice: &buy},
	}
	setter := &recordingPriceSetter{failOn: "IRON"}
	err := importPrices(context.Background(), setter, prices, zap.NewNop())
	if err == nil || !strings.Contains(err.Error(), "IRON") {
		test.Fatalf("expected IRON failure, got %v", err)
	}
	if len(setter.received) != 1 || setter.received[0].ItemType != "STONE" {
		test.Fatalf("unexpected imports %+v", setter.received)
	}
}
