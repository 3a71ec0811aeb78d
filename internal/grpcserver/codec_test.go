package grpcserver

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestStructCodecCarriesMessagesAsProtobufStructs(test *testing.T) {
	test.Parallel()
	codec := structCodec{}
	before := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	data, err := codec.Marshal(&HistoryRequest{PlayerID: "steve", Before: &before, Limit: 25})
	if err != nil {
		test.Fatalf("marshal failed: %v", err)
	}

	wire := &structpb.Struct{}
	if err := proto.Unmarshal(data, wire); err != nil {
		test.Fatalf("payload is not a protobuf struct: %v", err)
	}
	if wire.GetFields()["player_id"].GetStringValue() != "steve" || wire.GetFields()["limit"].GetNumberValue() != 25 {
		test.Fatalf("unexpected wire fields %v", wire.GetFields())
	}

	var decoded HistoryRequest
	if err := codec.Unmarshal(data, &decoded); err != nil {
		test.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.PlayerID != "steve" || decoded.Limit != 25 || decoded.Before == nil || !decoded.Before.Equal(before) {
		test.Fatalf("unexpected decoded request %+v", decoded)
	}
}

func TestStructCodecKeepsDecimalPrecisionAndNilPrices(test *testing.T) {
	test.Parallel()
	codec := structCodec{}
	buy := decimal.RequireFromString("1234567890.123456789")
	data, err := codec.Marshal(&AdminPriceMessage{ItemType: "DIAMOND", BuyPrice: &buy})
	if err != nil {
		test.Fatalf("marshal failed: %v", err)
	}
	var decoded AdminPriceMessage
	if err := codec.Unmarshal(data, &decoded); err != nil {
		test.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.BuyPrice == nil || !decoded.BuyPrice.Equal(buy) {
		test.Fatalf("expected exact buy price, got %v", decoded.BuyPrice)
	}
	if decoded.SellPrice != nil {
		test.Fatalf("expected no sell price, got %s", decoded.SellPrice)
	}
}

func TestStructCodecHandlesEmptyMessages(test *testing.T) {
	test.Parallel()
	codec := structCodec{}
	data, err := codec.Marshal(&Empty{})
	if err != nil {
		test.Fatalf("marshal failed: %v", err)
	}
	if err := codec.Unmarshal(data, &Empty{}); err != nil {
		test.Fatalf("unmarshal failed: %v", err)
	}
	if codec.Name() != CodecName {
		test.Fatalf("unexpected codec name %q", codec.Name())
	}
}
