package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseLotStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    LotStatus
		wantErr bool
	}{
		{"ACTIVE", LotActive, false},
		{"active", LotActive, false},
		{" Expired ", LotExpired, false},
		{"COMPLETED", LotCompleted, false},
		{"cancelled", LotCancelled, false},
		{"PAUSED", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLotStatus(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLotStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLotStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if !LotActive.IsActive() {
		t.Error("ACTIVE should be active")
	}
	if LotExpired.IsActive() || LotCompleted.IsActive() || LotCancelled.IsActive() {
		t.Error("only ACTIVE should be active")
	}
}

func TestSortOffers(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	offers := []Offer{
		{ID: "c", SubmittedAt: base.Add(2 * time.Second), Seq: 1},
		{ID: "b", SubmittedAt: base, Seq: 7},
		{ID: "a", SubmittedAt: base, Seq: 3},
	}

	SortOffers(offers)

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if offers[i].ID != id {
			t.Errorf("offers[%d].ID = %q, want %q", i, offers[i].ID, id)
		}
	}
}

func TestBidDetail_HighestAmount(t *testing.T) {
	t.Run("no offers returns minimum price", func(t *testing.T) {
		d := BidDetail{Lot: BidLot{MinimumPrice: decimal.NewFromInt(100)}}
		if got := d.HighestAmount(); !got.Equal(decimal.NewFromInt(100)) {
			t.Errorf("HighestAmount() = %s, want 100", got)
		}
	})

	t.Run("max offer wins", func(t *testing.T) {
		d := BidDetail{
			Lot: BidLot{MinimumPrice: decimal.NewFromInt(100)},
			Offers: []Offer{
				{Amount: decimal.NewFromInt(110)},
				{Amount: decimal.NewFromInt(135)},
				{Amount: decimal.NewFromInt(120)},
			},
		}
		if got := d.HighestAmount(); !got.Equal(decimal.NewFromInt(135)) {
			t.Errorf("HighestAmount() = %s, want 135", got)
		}
	})
}

func TestBidUpdate_Offer(t *testing.T) {
	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	u := BidUpdate{
		LotID:          "lot-1",
		OfferID:        "offer-9",
		BidderID:       "buyer-2",
		Amount:         decimal.RequireFromString("152.50"),
		Timestamp:      ts,
		TotalBids:      4,
		IdempotencyKey: "key-1",
		Seq:            12,
	}

	o := u.Offer()
	if o.ID != "offer-9" || o.LotID != "lot-1" || o.BidderID != "buyer-2" {
		t.Errorf("unexpected identity fields: %+v", o)
	}
	if !o.Amount.Equal(decimal.RequireFromString("152.5")) {
		t.Errorf("Amount = %s, want 152.5", o.Amount)
	}
	if !o.SubmittedAt.Equal(ts) || o.Seq != 12 || o.IdempotencyKey != "key-1" {
		t.Errorf("unexpected ordering fields: %+v", o)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"rfc3339", "2025-03-01T09:30:00Z", time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), false},
		{"quoted", `"2025-03-01T09:30:00.250Z"`, time.Date(2025, 3, 1, 9, 30, 0, 250_000_000, time.UTC), false},
		{"offset", "2025-03-01T15:00:00+05:30", time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), false},
		{"unix millis", "1740821400000", time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, false},
		{"null", "null", time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
