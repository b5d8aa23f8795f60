package vk

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Availability mirrors the market item state codes of the VK API.
type Availability int

const (
	AvailabilityPresented    Availability = 0
	AvailabilityDeleted      Availability = 1
	AvailabilityInaccessible Availability = 2
)

// Price amounts are in minor units (kopecks). OldAmount is set when the
// item has a crossed-out previous price.
type Price struct {
	Amount    decimal.Decimal  `json:"amount"`
	OldAmount *decimal.Decimal `json:"old_amount,omitempty"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type PhotoSize struct {
	Width int    `json:"width"`
	URL   string `json:"url"`
}

type Photo struct {
	ID    int64       `json:"id"`
	Sizes []PhotoSize `json:"sizes"`
}

type Video struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Duration int    `json:"duration"` // seconds
}

type OwnerInfo struct {
	Category string `json:"category"`
}

// MarketItem is one raw catalog record as returned by market.get with
// extended=1. Date is a unix timestamp, 0 when the API omits it.
type MarketItem struct {
	ID           int64        `json:"id"`
	OwnerID      int64        `json:"owner_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Price        Price        `json:"price"`
	Category     Category     `json:"category"`
	Availability Availability `json:"availability"`
	SKU          string       `json:"sku"`
	Photos       []Photo      `json:"photos"`
	Videos       []Video      `json:"videos"`
	OwnerInfo    OwnerInfo    `json:"owner_info"`
	Date         int64        `json:"date"`
}

// GroupItem is one community from groups.get.
type GroupItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type marketGetResponse struct {
	Count int          `json:"count"`
	Items []MarketItem `json:"items"`
}

type groupsGetResponse struct {
	Count int         `json:"count"`
	Items []GroupItem `json:"items"`
}

type apiFault struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

// envelope is the common VK response wrapper: either "response" or "error"
// is present, both inside an HTTP 200.
type envelope struct {
	Error    *apiFault       `json:"error"`
	Response json.RawMessage `json:"response"`
}
