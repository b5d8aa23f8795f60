// Package export drives one catalog sync run: fetch from VK, transform,
// upload through the CommerceML handshake, stream progress events.
package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/bartek5186/vk2cml/internal/catalog"
	"github.com/bartek5186/vk2cml/internal/cml"
	"github.com/bartek5186/vk2cml/internal/vk"
)

// photoMaxWidth caps photo variants; the destination renders nothing wider.
const photoMaxWidth = 807

// MarketSession is the slice of the VK session the run needs.
type MarketSession interface {
	Market(ctx context.Context, ownerID int64, withDisabled bool) ([]vk.MarketItem, error)
	DownloadPhotos(ctx context.Context, photos []vk.Photo, maxWidth int) (map[string][]byte, error)
	Close() error
}

// ExchangeSession is the slice of the CommerceML session the run needs.
type ExchangeSession interface {
	Upload(ctx context.Context, importDoc *cml.ImportDocument, offersDoc *cml.OffersDocument, photos map[string][]byte) error
}

type Service struct {
	log          zerolog.Logger
	openMarket   func(token string) (MarketSession, error)
	openExchange func(url, login, password string) (ExchangeSession, error)
}

func NewService(log zerolog.Logger, vkClient *vk.Client, cmlClient *cml.Client) *Service {
	return &Service{
		log: log,
		openMarket: func(token string) (MarketSession, error) {
			return vkClient.Session(token)
		},
		openExchange: func(url, login, password string) (ExchangeSession, error) {
			return cmlClient.Session(url, login, password)
		},
	}
}

// RunConfig is everything one sync run needs; nothing is kept between runs.
type RunConfig struct {
	CmlURL      string
	CmlLogin    string
	CmlPassword string

	VkToken   string
	VkGroupID int64

	WithDisabled       bool
	WithPhotos         bool
	SkipMultipleGroup  bool
	MakeCategoryReport bool
}

// Run executes one sync and returns the ordered event stream. The channel
// is closed when the run ends; cancelling ctx aborts in-flight work and the
// run reports failure rather than silently abandoning a server-side job.
func (s *Service) Run(ctx context.Context, cfg RunConfig) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Msg("sync run panicked")
				emit(ctx, events, Event{Kind: EventRunFailed, Reason: fmt.Sprint(r)})
			}
		}()
		s.run(ctx, cfg, events)
	}()
	return events
}

func (s *Service) run(ctx context.Context, cfg RunConfig, events chan<- Event) {
	vkSession, err := s.openMarket(cfg.VkToken)
	if err != nil {
		emit(ctx, events, Event{Kind: EventFetchFailed, Reason: err.Error()})
		return
	}
	defer vkSession.Close()

	items, err := vkSession.Market(ctx, -cfg.VkGroupID, cfg.WithDisabled)
	if err != nil {
		s.log.Error().Err(err).Msg("get products failed")
		emit(ctx, events, Event{Kind: EventFetchFailed, Reason: err.Error()})
		return
	}
	if !emit(ctx, events, Event{Kind: EventFetchOK, Count: len(items)}) {
		return
	}

	result := catalog.Transform(items, catalog.Options{
		SkipMultipleGroup: cfg.SkipMultipleGroup,
		MakeReport:        cfg.MakeCategoryReport,
		Now:               time.Now(),
	})

	exchange, err := s.openExchange(cfg.CmlURL, cfg.CmlLogin, cfg.CmlPassword)
	if err != nil {
		emit(ctx, events, Event{Kind: EventDocumentsFailed, Reason: err.Error()})
		return
	}
	if err := exchange.Upload(ctx, result.Import, result.Offers, nil); err != nil {
		s.log.Error().Err(err).Msg("document upload failed")
		emit(ctx, events, Event{Kind: EventDocumentsFailed, Reason: err.Error()})
		return
	}
	if !emit(ctx, events, Event{Kind: EventDocumentsOK, Report: result.Report}) {
		return
	}

	if !cfg.WithPhotos {
		return
	}

	// Incremental media-only document: same classifier, products carry ids
	// and image filenames only.
	imagesDoc := cml.NewImportDocument(result.Import.Classifier, cml.NewCatalog(true, nil), time.Now())
	photos := map[string][]byte{}
	for _, item := range items {
		if item.Availability != vk.AvailabilityPresented {
			continue
		}
		s.log.Info().Str("title", item.Title).Int64("id", item.ID).Msg("product photo upload")
		itemPhotos, err := vkSession.DownloadPhotos(ctx, item.Photos, photoMaxWidth)
		if err != nil {
			s.log.Error().Err(err).Msg("photo download failed")
			emit(ctx, events, Event{Kind: EventPhotosFailed, Reason: err.Error()})
			return
		}
		product := cml.NewProduct()
		product.ID = catalog.ExternalID(item.ID)
		product.Name = item.Title
		for name, data := range itemPhotos {
			product.Images = append(product.Images, name)
			photos[name] = data
		}
		sort.Strings(product.Images)
		imagesDoc.Catalog.Products = append(imagesDoc.Catalog.Products, product)
	}

	// Fresh session for the media upload: the handshake is re-negotiated so
	// zip/chunk settings cannot go stale.
	exchange, err = s.openExchange(cfg.CmlURL, cfg.CmlLogin, cfg.CmlPassword)
	if err != nil {
		emit(ctx, events, Event{Kind: EventPhotosFailed, Reason: err.Error()})
		return
	}
	if err := exchange.Upload(ctx, imagesDoc, nil, photos); err != nil {
		s.log.Error().Err(err).Msg("photo upload failed")
		emit(ctx, events, Event{Kind: EventPhotosFailed, Reason: err.Error()})
		return
	}
	emit(ctx, events, Event{Kind: EventPhotosOK, Count: len(photos)})
}

// emit delivers one event unless the run is cancelled.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
