package catalog

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/vk2cml/internal/cml"
	"github.com/bartek5186/vk2cml/internal/vk"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func testItem(id int64) vk.MarketItem {
	return vk.MarketItem{
		ID:           id,
		OwnerID:      -111,
		Title:        "Shirt",
		Description:  "A soft shirt",
		Price:        vk.Price{Amount: decimal.NewFromInt(12345)},
		Availability: vk.AvailabilityPresented,
		SKU:          "SKU-1",
		OwnerInfo:    vk.OwnerInfo{Category: "Men Clothes"},
		// well outside the recency window
		Date: testNow.AddDate(0, -6, 0).Unix(),
	}
}

func detailValue(p cml.Product, name string) (string, bool) {
	for _, d := range p.DetailValues {
		if d.Name == name {
			return d.Value, true
		}
	}
	return "", false
}

func TestTransform_ProductAndOfferShareExternalID(t *testing.T) {
	res := Transform([]vk.MarketItem{testItem(42)}, Options{MakeReport: true, Now: testNow})

	require.Len(t, res.Import.Catalog.Products, 1)
	require.Len(t, res.Offers.Package.Offers, 1)
	assert.Equal(t, "vk_42", res.Import.Catalog.Products[0].ID)
	assert.Equal(t, "vk_42", res.Offers.Package.Offers[0].ID)
	assert.Equal(t, 1, strings.Count(res.Report, "vk_42"))
}

func TestTransform_PresentedItem(t *testing.T) {
	res := Transform([]vk.MarketItem{testItem(1)}, Options{Now: testNow})

	p := res.Import.Catalog.Products[0]
	assert.Equal(t, "Shirt", p.Name)
	assert.Equal(t, []string{"men_clothes"}, p.GroupIDs)
	assert.Contains(t, res.Import.Classifier.Groups, cml.Group{ID: "men_clothes", Name: "Men Clothes"})

	o := res.Offers.Package.Offers[0]
	assert.True(t, o.Quantity.Equal(decimal.NewFromInt(1)))
	require.Len(t, o.Prices, 1)
	assert.Equal(t, "sale_price", o.Prices[0].PriceTypeID)
	assert.True(t, o.Prices[0].UnitPrice.Equal(decimal.RequireFromString("123.45")),
		"got %s", o.Prices[0].UnitPrice)
}

func TestTransform_SoldItem(t *testing.T) {
	for _, availability := range []vk.Availability{vk.AvailabilityDeleted, vk.AvailabilityInaccessible} {
		item := testItem(7)
		item.Availability = availability
		res := Transform([]vk.MarketItem{item}, Options{MakeReport: true, Now: testNow})

		p := res.Import.Catalog.Products[0]
		assert.Equal(t, "Shirt [Продано]", p.Name)
		assert.Equal(t, []string{"продано"}, p.GroupIDs)

		o := res.Offers.Package.Offers[0]
		assert.True(t, o.Quantity.Equal(decimal.NewFromInt(0)))
		assert.Contains(t, res.Report, "vk_7,,Продано,")
	}
}

func TestTransform_DiscountPrices(t *testing.T) {
	item := testItem(1)
	old := decimal.NewFromInt(20000)
	item.Price.OldAmount = &old

	res := Transform([]vk.MarketItem{item}, Options{Now: testNow})

	prices := res.Offers.Package.Offers[0].Prices
	require.Len(t, prices, 2)
	assert.Equal(t, "sale_price", prices[0].PriceTypeID)
	assert.True(t, prices[0].UnitPrice.Equal(decimal.RequireFromString("200")))
	assert.Equal(t, "discount_price", prices[1].PriceTypeID)
	assert.True(t, prices[1].UnitPrice.Equal(decimal.RequireFromString("123.45")))
}

func TestTransform_NewItem(t *testing.T) {
	item := testItem(1)
	item.Date = testNow.AddDate(0, 0, -10).Unix()

	res := Transform([]vk.MarketItem{item}, Options{MakeReport: true, Now: testNow})

	p := res.Import.Catalog.Products[0]
	assert.Equal(t, []string{"new", "men_clothes"}, p.GroupIDs)
	mark, ok := detailValue(p, "Mark")
	require.True(t, ok)
	assert.Equal(t, "NEW", mark)
	assert.Contains(t, res.Report, "vk_1,NEW,new;Men Clothes,")
}

func TestTransform_SkipMultipleGroupLeavesNewItemsUngrouped(t *testing.T) {
	item := testItem(1)
	item.Date = testNow.AddDate(0, 0, -10).Unix()

	res := Transform([]vk.MarketItem{item}, Options{SkipMultipleGroup: true, MakeReport: true, Now: testNow})

	p := res.Import.Catalog.Products[0]
	assert.Empty(t, p.GroupIDs)
	// the report still carries the row so the operator can categorize by hand
	assert.Contains(t, res.Report, "vk_1,NEW,new;Men Clothes,")
}

func TestTransform_ItemWithoutDateIsNotNew(t *testing.T) {
	item := testItem(1)
	item.Date = 0

	res := Transform([]vk.MarketItem{item}, Options{Now: testNow})
	assert.Equal(t, []string{"men_clothes"}, res.Import.Catalog.Products[0].GroupIDs)
}

func TestTransform_PropertiesBlock(t *testing.T) {
	item := testItem(1)
	item.Description = "Material: cotton, linen\nColor: red\n--\nA soft shirt"

	res := Transform([]vk.MarketItem{item}, Options{Now: testNow})

	p := res.Import.Catalog.Products[0]
	assert.Equal(t, "A soft shirt", p.Description)
	assert.ElementsMatch(t, []cml.PropertyValue{
		{ID: "material", Value: "cotton"},
		{ID: "material", Value: "linen"},
		{ID: "color", Value: "red"},
	}, p.PropertyValues)
	assert.Contains(t, res.Import.Classifier.Properties, cml.Property{ID: "material", Name: "Material"})
	assert.Contains(t, res.Import.Classifier.Properties, cml.Property{ID: "color", Name: "Color"})

	fullName, ok := detailValue(p, "Полное наименование")
	require.True(t, ok)
	assert.Equal(t, "Material cotton, linen", fullName)

	seo, ok := detailValue(p, "SEO descr")
	require.True(t, ok)
	assert.Equal(t, "A soft shirt", seo)
}

func TestTransform_TrailingPropertiesBlock(t *testing.T) {
	item := testItem(1)
	item.Description = "A soft shirt\nHand made\n--\nMaterial: cotton"

	res := Transform([]vk.MarketItem{item}, Options{Now: testNow})

	p := res.Import.Catalog.Products[0]
	assert.Equal(t, "A soft shirt\nHand made", p.Description)
	assert.Equal(t, []cml.PropertyValue{{ID: "material", Value: "cotton"}}, p.PropertyValues)
}

func TestTransform_FullNameFallback(t *testing.T) {
	item := testItem(1)
	item.Description = "A soft shirt\nHand made in Pskov"

	res := Transform([]vk.MarketItem{item}, Options{Now: testNow})

	fullName, ok := detailValue(res.Import.Catalog.Products[0], "Полное наименование")
	require.True(t, ok)
	assert.Equal(t, "Hand made in Pskov", fullName)
}

func TestTransform_NoFullNameForSingleLine(t *testing.T) {
	res := Transform([]vk.MarketItem{testItem(1)}, Options{Now: testNow})

	_, ok := detailValue(res.Import.Catalog.Products[0], "Полное наименование")
	assert.False(t, ok)
}

func TestTransform_VideoLinks(t *testing.T) {
	item := testItem(1)
	item.Videos = []vk.Video{{ID: 555, Title: "Fitting", Duration: 185}}

	res := Transform([]vk.MarketItem{item}, Options{Now: testNow})

	desc := res.Import.Catalog.Products[0].Description
	assert.True(t, strings.HasPrefix(desc, "A soft shirt\n\n"))
	assert.Contains(t, desc, `<a href="https://vk.com/video-111_555" target="_blank">Видео "Fitting" (0:03:05)</a>`)
}

func TestTransform_NoVideosLeavesDescriptionAlone(t *testing.T) {
	res := Transform([]vk.MarketItem{testItem(1)}, Options{Now: testNow})
	assert.Equal(t, "A soft shirt", res.Import.Catalog.Products[0].Description)
}

func TestTransform_GroupDedupe(t *testing.T) {
	a, b := testItem(1), testItem(2)
	res := Transform([]vk.MarketItem{a, b}, Options{Now: testNow})

	// sold + new + one real category, no duplicates
	require.Len(t, res.Import.Classifier.Groups, 3)
}

func TestTransform_Idempotent(t *testing.T) {
	items := []vk.MarketItem{testItem(1), testItem(2)}
	items[1].Description = "Wool coat\n--\nMaterial: wool"
	items[1].OwnerInfo.Category = "Coats"

	first := Transform(items, Options{MakeReport: true, Now: testNow})
	second := Transform(items, Options{MakeReport: true, Now: testNow})

	assert.Equal(t, first.Import.Classifier, second.Import.Classifier)
	assert.Equal(t, first.Report, second.Report)
}

func TestTransform_SyntheticGroupsAlwaysPresent(t *testing.T) {
	res := Transform(nil, Options{Now: testNow})

	assert.Contains(t, res.Import.Classifier.Groups, cml.Group{ID: "продано", Name: "Продано"})
	assert.Contains(t, res.Import.Classifier.Groups, cml.Group{ID: "new", Name: "new"})
}

func TestTransform_ReportDisabled(t *testing.T) {
	res := Transform([]vk.MarketItem{testItem(1)}, Options{Now: testNow})
	assert.Empty(t, res.Report)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00:09", formatDuration(9))
	assert.Equal(t, "0:03:05", formatDuration(185))
	assert.Equal(t, "1:01:40", formatDuration(3700))
}
