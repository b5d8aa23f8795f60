// Package catalog turns raw VK market items into CommerceML documents plus
// the category-assignment report. Pure data mapping, no I/O.
package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bartek5186/vk2cml/internal/cml"
	"github.com/bartek5186/vk2cml/internal/vk"
)

const (
	soldGroupID   = "продано"
	soldGroupName = "Продано"
	newGroupID    = "new"
	soldSuffix    = " [Продано]"

	saleTypeID       = "sale_price"
	saleTypeName     = "Цена продажи"
	discountTypeID   = "discount_price"
	discountTypeName = "Цена со скидкой"

	markNew = "NEW"

	seoDetailName      = "SEO descr"
	fullNameDetailName = "Полное наименование"
	markDetailName     = "Mark"

	// items created within this window count as new
	newWindow = 31 * 24 * time.Hour
)

type Options struct {
	// SkipMultipleGroup leaves new available products ungrouped instead of
	// placing them into both the "new" and their own group. Paired with the
	// category report: the operator assigns categories manually.
	SkipMultipleGroup bool
	MakeReport        bool
	// Now anchors the recency window; zero means time.Now.
	Now time.Time
}

type Result struct {
	Import *cml.ImportDocument
	Offers *cml.OffersDocument
	// Report is the category CSV, empty unless requested.
	Report string
}

// ExternalID is the destination-side id derived from a VK item id.
func ExternalID(itemID int64) string {
	return fmt.Sprintf("vk_%d", itemID)
}

// Transform maps the item snapshot into an import document, an offers
// document and (optionally) the category report. Running it twice over
// equal input yields identically-valued classifier sets.
func Transform(items []vk.MarketItem, opts Options) Result {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Add(-newWindow)

	groups := map[cml.Group]struct{}{
		{ID: soldGroupID, Name: soldGroupName}: {},
		{ID: newGroupID, Name: newGroupID}:     {},
	}
	properties := map[cml.Property]struct{}{}
	products := make([]cml.Product, 0, len(items))
	offers := make([]cml.Offer, 0, len(items))

	var report *reportWriter
	if opts.MakeReport {
		report = newReportWriter()
	}

	for _, item := range items {
		groupName := item.OwnerInfo.Category
		groupID := slug(groupName)
		externalID := ExternalID(item.ID)
		groups[cml.Group{ID: groupID, Name: groupName}] = struct{}{}

		description, parsed, fullName := parseDescription(item.Description)

		var propertyValues []cml.PropertyValue
		for _, p := range parsed {
			properties[cml.Property{ID: p.id, Name: p.name}] = struct{}{}
			for _, value := range p.values {
				propertyValues = append(propertyValues, cml.PropertyValue{ID: p.id, Value: value})
			}
		}

		seoDescr, _, _ := strings.Cut(description, "\n")

		if links := videoLinks(item); len(links) > 0 {
			description += "\n\n" + strings.Join(links, "\n")
		}

		isNew := item.Date > 0 && time.Unix(item.Date, 0).After(cutoff)

		title := item.Title
		var groupIDs, reportCategories []string
		var mark string
		if item.Availability == vk.AvailabilityPresented {
			if isNew {
				if !opts.SkipMultipleGroup {
					groupIDs = []string{newGroupID, groupID}
				}
				reportCategories = []string{newGroupID, groupName}
				mark = markNew
			} else {
				groupIDs = []string{groupID}
				reportCategories = []string{groupName}
			}
		} else {
			// sold items stay in the catalog, relabeled and regrouped
			title = item.Title + soldSuffix
			groupIDs = []string{soldGroupID}
			reportCategories = []string{soldGroupName}
		}
		if report != nil {
			report.WriteRow(externalID, mark, reportCategories, seoDescr, "")
		}

		detailValues := []cml.DetailValue{{Name: seoDetailName, Value: seoDescr}}
		if fullName != "" {
			detailValues = append(detailValues, cml.DetailValue{Name: fullNameDetailName, Value: fullName})
		}
		if isNew {
			detailValues = append(detailValues, cml.DetailValue{Name: markDetailName, Value: markNew})
		}

		product := cml.NewProduct()
		product.ID = externalID
		product.Number = item.SKU
		product.Name = title
		product.Description = description
		product.GroupIDs = groupIDs
		product.PropertyValues = propertyValues
		product.DetailValues = detailValues
		products = append(products, product)

		offers = append(offers, cml.Offer{
			ID:       externalID,
			Number:   item.SKU,
			Name:     title,
			BaseUnit: product.BaseUnit,
			Prices:   itemPrices(item.Price),
			Quantity: quantity(item.Availability),
		})
	}

	classifier := cml.NewClassifier(sortedGroups(groups), sortedProperties(properties))

	result := Result{
		Import: cml.NewImportDocument(classifier, cml.NewCatalog(false, products), now),
		Offers: cml.NewOffersDocument([]cml.PriceType{
			{ID: saleTypeID, Name: saleTypeName, Currency: "RUB"},
			{ID: discountTypeID, Name: discountTypeName, Currency: "RUB"},
		}, offers, now),
	}
	if report != nil {
		result.Report = report.String()
	}
	return result
}

// itemPrices derives the offer prices. A previous amount means "was/now":
// the old amount becomes the sale price, the current one the discount.
func itemPrices(p vk.Price) []cml.Price {
	if p.OldAmount != nil {
		return []cml.Price{
			cml.NewPrice(saleTypeID, p.OldAmount.Shift(-2)),
			cml.NewPrice(discountTypeID, p.Amount.Shift(-2)),
		}
	}
	return []cml.Price{cml.NewPrice(saleTypeID, p.Amount.Shift(-2))}
}

func quantity(a vk.Availability) decimal.Decimal {
	if a == vk.AvailabilityPresented {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(0)
}

func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

var rePropertiesArea = regexp.MustCompile(`(?s)^(.*?)\s*--\s*(.*)$`)

type parsedProperty struct {
	id, name string
	// raw is the value text before comma splitting, used for the full name
	raw    string
	values []string
}

// parseDescription splits a description on the first "--" separator into
// free text and a properties block of "key: value" lines. Either side may
// hold the block; the side that parses wins and the other becomes the
// cleaned description. The first property seeds the full name; without a
// block the trailing line of the text is used instead.
func parseDescription(description string) (clean string, props []parsedProperty, fullName string) {
	clean = description
	if m := rePropertiesArea.FindStringSubmatch(description); m != nil {
		head, tail := m[1], m[2]
		if props = parseProperties(tail); len(props) > 0 {
			clean = head
		} else if props = parseProperties(head); len(props) > 0 {
			clean = tail
		} else {
			clean = head
		}
	}
	if len(props) > 0 {
		fullName = props[0].name + " " + props[0].raw
		return clean, props, fullName
	}
	// fall back to the body's trailing line
	if idx := strings.LastIndexByte(clean, '\n'); idx >= 0 {
		fullName = strings.TrimSpace(clean[idx+1:])
	}
	return clean, props, fullName
}

func parseProperties(area string) []parsedProperty {
	var props []parsedProperty
	for _, line := range strings.Split(area, "\n") {
		name, raw, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		raw = strings.TrimSpace(raw)
		p := parsedProperty{id: slug(name), name: name, raw: raw}
		for _, value := range strings.Split(raw, ",") {
			p.values = append(p.values, strings.TrimSpace(value))
		}
		props = append(props, p)
	}
	return props
}

func videoLinks(item vk.MarketItem) []string {
	links := make([]string, 0, len(item.Videos))
	for _, video := range item.Videos {
		u := fmt.Sprintf("https://vk.com/video%d_%d", item.OwnerID, video.ID)
		links = append(links, fmt.Sprintf(`<a href="%s" target="_blank">Видео "%s" (%s)</a>`,
			u, video.Title, formatDuration(video.Duration)))
	}
	return links
}

func formatDuration(seconds int) string {
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}

func sortedGroups(set map[cml.Group]struct{}) []cml.Group {
	out := make([]cml.Group, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func sortedProperties(set map[cml.Property]struct{}) []cml.Property {
	out := make([]cml.Property, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}
