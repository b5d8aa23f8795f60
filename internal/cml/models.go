// Package cml implements the CommerceML catalog-exchange documents and the
// checkauth/init/file/import upload handshake spoken by 1C-style storefront
// endpoints.
package cml

import (
	"encoding/xml"
	"time"

	"github.com/shopspring/decimal"
)

// The destination schema is fixed and Russian-tagged; these names are part
// of the wire contract, not ours to translate.

const (
	classifierID   = "classifier"
	classifierName = "Классификатор (Каталог товаров)"
	catalogID      = "catalog"
	catalogName    = "Каталог товаров"
	offersID       = "offers"
	offersName     = "Пакет предложений"
	schemaVersion  = "2.04"
	defaultUnit    = "шт"
)

type Group struct {
	ID   string `xml:"Ид"`
	Name string `xml:"Наименование"`
}

type Property struct {
	ID   string `xml:"Ид"`
	Name string `xml:"Наименование"`
}

type Classifier struct {
	ID         string     `xml:"Ид"`
	Name       string     `xml:"Наименование"`
	Groups     []Group    `xml:"Группы>Группа"`
	Properties []Property `xml:"Свойства>Свойство"`
}

func NewClassifier(groups []Group, properties []Property) Classifier {
	return Classifier{
		ID:         classifierID,
		Name:       classifierName,
		Groups:     groups,
		Properties: properties,
	}
}

type BaseUnit struct {
	FullName string `xml:"НаименованиеПолное,attr"`
	Value    string `xml:",chardata"`
}

func defaultBaseUnit() BaseUnit {
	return BaseUnit{FullName: defaultUnit, Value: defaultUnit}
}

type PropertyValue struct {
	ID    string `xml:"Ид"`
	Value string `xml:"Значение"`
}

type DetailValue struct {
	Name  string `xml:"Наименование"`
	Value string `xml:"Значение"`
}

type Product struct {
	ID             string          `xml:"Ид"`
	Number         string          `xml:"Артикул,omitempty"`
	Name           string          `xml:"Наименование"`
	BaseUnit       BaseUnit        `xml:"БазоваяЕдиница"`
	Description    string          `xml:"Описание,omitempty"`
	GroupIDs       []string        `xml:"Группы>Ид"`
	Images         []string        `xml:"Картинка"`
	PropertyValues []PropertyValue `xml:"ЗначенияСвойств>ЗначенияСвойства"`
	DetailValues   []DetailValue   `xml:"ЗначенияРеквизитов>ЗначениеРеквизита"`
}

func NewProduct() Product {
	return Product{BaseUnit: defaultBaseUnit()}
}

type Catalog struct {
	OnlyChanges  bool      `xml:"СодержитТолькоИзменения,attr"`
	ID           string    `xml:"Ид"`
	ClassifierID string    `xml:"ИдКлассификатора"`
	Name         string    `xml:"Наименование"`
	Products     []Product `xml:"Товары>Товар"`
}

func NewCatalog(onlyChanges bool, products []Product) Catalog {
	return Catalog{
		OnlyChanges:  onlyChanges,
		ID:           catalogID,
		ClassifierID: classifierID,
		Name:         catalogName,
		Products:     products,
	}
}

// ImportDocument is the classifier+catalog half of a catalog exchange.
type ImportDocument struct {
	XMLName       xml.Name   `xml:"КоммерческаяИнформация"`
	SchemaVersion string     `xml:"ВерсияСхемы,attr"`
	CreationDate  string     `xml:"ДатаФормирования,attr"`
	SyncProducts  bool       `xml:"СинхронизацияТоваров,attr"`
	Classifier    Classifier `xml:"Классификатор"`
	Catalog       Catalog    `xml:"Каталог"`
}

func NewImportDocument(classifier Classifier, catalog Catalog, now time.Time) *ImportDocument {
	return &ImportDocument{
		SchemaVersion: schemaVersion,
		CreationDate:  now.UTC().Format(time.RFC3339),
		Classifier:    classifier,
		Catalog:       catalog,
	}
}

type PriceType struct {
	ID       string `xml:"Ид"`
	Name     string `xml:"Наименование"`
	Currency string `xml:"Валюта"`
}

type Price struct {
	PriceTypeID string          `xml:"ИдТипаЦены"`
	UnitPrice   decimal.Decimal `xml:"ЦенаЗаЕдиницу"`
	Currency    string          `xml:"Валюта"`
	Unit        string          `xml:"Единица"`
	Ratio       decimal.Decimal `xml:"Коэффициент"`
}

func NewPrice(priceTypeID string, unitPrice decimal.Decimal) Price {
	return Price{
		PriceTypeID: priceTypeID,
		UnitPrice:   unitPrice,
		Currency:    "RUB",
		Unit:        defaultUnit,
		Ratio:       decimal.NewFromInt(1),
	}
}

type Offer struct {
	ID       string          `xml:"Ид"`
	Number   string          `xml:"Артикул,omitempty"`
	Name     string          `xml:"Наименование"`
	BaseUnit BaseUnit        `xml:"БазоваяЕдиница"`
	Prices   []Price         `xml:"Цены>Цена"`
	Quantity decimal.Decimal `xml:"Количество"`
}

type OffersPackage struct {
	OnlyChanges  bool        `xml:"СодержитТолькоИзменения,attr"`
	ID           string      `xml:"Ид"`
	Name         string      `xml:"Наименование"`
	CatalogID    string      `xml:"ИдКаталога"`
	ClassifierID string      `xml:"ИдКлассификатора"`
	PriceTypes   []PriceType `xml:"ТипыЦен>ТипЦены"`
	Offers       []Offer     `xml:"Предложения>Предложение"`
}

// OffersDocument is the price/stock half of a catalog exchange.
type OffersDocument struct {
	XMLName       xml.Name      `xml:"КоммерческаяИнформация"`
	SchemaVersion string        `xml:"ВерсияСхемы,attr"`
	CreationDate  string        `xml:"ДатаФормирования,attr"`
	SyncProducts  bool          `xml:"СинхронизацияТоваров,attr"`
	Package       OffersPackage `xml:"ПакетПредложений"`
}

func NewOffersDocument(priceTypes []PriceType, offers []Offer, now time.Time) *OffersDocument {
	return &OffersDocument{
		SchemaVersion: schemaVersion,
		CreationDate:  now.UTC().Format(time.RFC3339),
		Package: OffersPackage{
			ID:           offersID,
			Name:         offersName,
			CatalogID:    catalogID,
			ClassifierID: classifierID,
			PriceTypes:   priceTypes,
			Offers:       offers,
		},
	}
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

func marshalDocument(doc any) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xmlHeader), body...), nil
}

// XML renders the document as a standalone UTF-8 payload.
func (d *ImportDocument) XML() ([]byte, error) { return marshalDocument(d) }

func (d *OffersDocument) XML() ([]byte, error) { return marshalDocument(d) }
