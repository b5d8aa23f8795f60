package export

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/vk2cml/internal/cml"
	"github.com/bartek5186/vk2cml/internal/vk"
)

type fakeMarket struct {
	items     []vk.MarketItem
	marketErr error
	photos    map[string][]byte
	photosErr error
	closed    bool
}

func (f *fakeMarket) Market(ctx context.Context, ownerID int64, withDisabled bool) ([]vk.MarketItem, error) {
	return f.items, f.marketErr
}

func (f *fakeMarket) DownloadPhotos(ctx context.Context, photos []vk.Photo, maxWidth int) (map[string][]byte, error) {
	return f.photos, f.photosErr
}

func (f *fakeMarket) Close() error {
	f.closed = true
	return nil
}

type uploadCall struct {
	importDoc *cml.ImportDocument
	offersDoc *cml.OffersDocument
	photos    map[string][]byte
}

type fakeExchange struct {
	calls []uploadCall
	errs  []error
}

func (f *fakeExchange) Upload(ctx context.Context, importDoc *cml.ImportDocument, offersDoc *cml.OffersDocument, photos map[string][]byte) error {
	f.calls = append(f.calls, uploadCall{importDoc: importDoc, offersDoc: offersDoc, photos: photos})
	if len(f.calls) <= len(f.errs) {
		return f.errs[len(f.calls)-1]
	}
	return nil
}

func newTestService(market *fakeMarket, exchange *fakeExchange) *Service {
	return &Service{
		log: zerolog.Nop(),
		openMarket: func(token string) (MarketSession, error) {
			return market, nil
		},
		openExchange: func(url, login, password string) (ExchangeSession, error) {
			return exchange, nil
		},
	}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	return got
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func marketItems() []vk.MarketItem {
	return []vk.MarketItem{
		{
			ID:           1,
			Title:        "Shirt",
			Price:        vk.Price{Amount: decimal.NewFromInt(12345)},
			Availability: vk.AvailabilityPresented,
			Photos:       []vk.Photo{{ID: 10}},
			OwnerInfo:    vk.OwnerInfo{Category: "Clothes"},
		},
		{
			ID:           2,
			Title:        "Coat",
			Price:        vk.Price{Amount: decimal.NewFromInt(500)},
			Availability: vk.AvailabilityDeleted,
			OwnerInfo:    vk.OwnerInfo{Category: "Clothes"},
		},
	}
}

func TestRunSuccess(t *testing.T) {
	market := &fakeMarket{items: marketItems()}
	exchange := &fakeExchange{}
	svc := newTestService(market, exchange)

	got := collect(t, svc.Run(context.Background(), RunConfig{MakeCategoryReport: true}))

	require.Equal(t, []EventKind{EventFetchOK, EventDocumentsOK}, kinds(got))
	assert.Equal(t, 2, got[0].Count)
	assert.Contains(t, got[1].Report, "vk_1")
	assert.True(t, market.closed)

	require.Len(t, exchange.calls, 1)
	call := exchange.calls[0]
	require.NotNil(t, call.importDoc)
	require.NotNil(t, call.offersDoc)
	assert.Nil(t, call.photos)
	assert.Len(t, call.importDoc.Catalog.Products, 2)
}

func TestRunFetchFailed(t *testing.T) {
	market := &fakeMarket{marketErr: errors.New("token expired")}
	exchange := &fakeExchange{}
	svc := newTestService(market, exchange)

	got := collect(t, svc.Run(context.Background(), RunConfig{}))

	require.Equal(t, []EventKind{EventFetchFailed}, kinds(got))
	assert.Equal(t, "token expired", got[0].Reason)
	assert.Empty(t, exchange.calls)
	assert.True(t, market.closed)
}

func TestRunDocumentUploadFailed(t *testing.T) {
	market := &fakeMarket{items: marketItems()}
	exchange := &fakeExchange{errs: []error{errors.New("endpoint down")}}
	svc := newTestService(market, exchange)

	got := collect(t, svc.Run(context.Background(), RunConfig{}))

	require.Equal(t, []EventKind{EventFetchOK, EventDocumentsFailed}, kinds(got))
	assert.Equal(t, "endpoint down", got[1].Reason)
}

func TestRunWithPhotos(t *testing.T) {
	market := &fakeMarket{
		items:  marketItems(),
		photos: map[string][]byte{"src_10.jpg": []byte("jpeg")},
	}
	exchange := &fakeExchange{}
	svc := newTestService(market, exchange)

	got := collect(t, svc.Run(context.Background(), RunConfig{WithPhotos: true}))

	require.Equal(t, []EventKind{EventFetchOK, EventDocumentsOK, EventPhotosOK}, kinds(got))
	assert.Equal(t, 1, got[2].Count)

	require.Len(t, exchange.calls, 2)
	media := exchange.calls[1]
	assert.Equal(t, map[string][]byte{"src_10.jpg": []byte("jpeg")}, media.photos)
	assert.Nil(t, media.offersDoc)
	assert.True(t, media.importDoc.Catalog.OnlyChanges)

	// only the presented item appears in the media document
	require.Len(t, media.importDoc.Catalog.Products, 1)
	product := media.importDoc.Catalog.Products[0]
	assert.Equal(t, "vk_1", product.ID)
	assert.Equal(t, []string{"src_10.jpg"}, product.Images)
}

func TestRunPhotoDownloadFailed(t *testing.T) {
	market := &fakeMarket{
		items:     marketItems(),
		photosErr: errors.New("photo gone"),
	}
	exchange := &fakeExchange{}
	svc := newTestService(market, exchange)

	got := collect(t, svc.Run(context.Background(), RunConfig{WithPhotos: true}))

	require.Equal(t, []EventKind{EventFetchOK, EventDocumentsOK, EventPhotosFailed}, kinds(got))
	assert.Equal(t, "photo gone", got[2].Reason)
	require.Len(t, exchange.calls, 1)
}

func TestRunOpenExchangeFailed(t *testing.T) {
	market := &fakeMarket{items: marketItems()}
	svc := &Service{
		log: zerolog.Nop(),
		openMarket: func(token string) (MarketSession, error) {
			return market, nil
		},
		openExchange: func(url, login, password string) (ExchangeSession, error) {
			return nil, errors.New("bad endpoint url")
		},
	}

	got := collect(t, svc.Run(context.Background(), RunConfig{}))

	require.Equal(t, []EventKind{EventFetchOK, EventDocumentsFailed}, kinds(got))
	assert.Equal(t, "bad endpoint url", got[1].Reason)
}

func TestRunCancelled(t *testing.T) {
	market := &fakeMarket{items: marketItems()}
	exchange := &fakeExchange{}
	svc := newTestService(market, exchange)

	ctx, cancel := context.WithCancel(context.Background())
	events := svc.Run(ctx, RunConfig{})
	cancel()

	// the channel always closes, cancelled or not
	for range events {
	}
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "fetch_ok", EventFetchOK.String())
	assert.Equal(t, "run_failed", EventRunFailed.String())
	assert.Equal(t, "unknown", EventKind(99).String())
}
