package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Peterdir/travel-booking-website/internal/logger"
	"github.com/Peterdir/travel-booking-website/internal/models"

	"github.com/nats-io/stan.go"
)

// handleTimeout ограничивает обработку одного сообщения, AckWait подписки 30s
const handleTimeout = 20 * time.Second

// TourSource - чтение туров из основной базы
type TourSource interface {
	GetByID(ctx context.Context, id string) (*models.Tour, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// TourIndexer - поисковый индекс, который держим в актуальном состоянии
type TourIndexer interface {
	IndexTour(ctx context.Context, tour *models.Tour) error
	DeleteTour(ctx context.Context, id string) error
}

type Handlers struct {
	tours TourSource
	index TourIndexer
}

func NewHandlers(tours TourSource, index TourIndexer) *Handlers {
	return &Handlers{
		tours: tours,
		index: index,
	}
}

// tourRef достает tour_id из любого события каталога или бронирования
type tourRef struct {
	TourID string `json:"tour_id"`
}

// ackWith подтверждает сообщение только при успешной обработке,
// иначе NATS Streaming доставит его повторно после AckWait.
func ackWith(name string, fn func(ctx context.Context, data []byte) error) stan.MsgHandler {
	return func(m *stan.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()

		log := logger.WithFields("handler", name, "subject", m.Subject, "sequence", m.Sequence)
		if err := fn(ctx, m.Data); err != nil {
			log.Error("Failed to process event", "error", err)
			return
		}

		if err := m.Ack(); err != nil {
			log.Error("Failed to ack event", "error", err)
		}
	}
}

// HandleTourChanged переиндексирует тур после tour.created и tour.updated
func (h *Handlers) HandleTourChanged(ctx context.Context, data []byte) error {
	ref, err := decodeRef(data)
	if err != nil {
		return err
	}
	slog.Info("Processing tour changed event", "tour_id", ref.TourID)
	return h.SyncTour(ctx, ref.TourID)
}

// HandleTourDeleted удаляет документ тура из индекса
func (h *Handlers) HandleTourDeleted(ctx context.Context, data []byte) error {
	ref, err := decodeRef(data)
	if err != nil {
		return err
	}
	slog.Info("Processing tour deleted event", "tour_id", ref.TourID)
	return h.index.DeleteTour(ctx, ref.TourID)
}

// HandleBookingEvent обновляет seatsLeft тура после создания, изменения или удаления брони
func (h *Handlers) HandleBookingEvent(ctx context.Context, data []byte) error {
	ref, err := decodeRef(data)
	if err != nil {
		return err
	}
	slog.Debug("Processing booking event", "tour_id", ref.TourID)
	return h.SyncTour(ctx, ref.TourID)
}

// SyncTour приводит документ индекса к состоянию базы: удаленный тур убирается из индекса
func (h *Handlers) SyncTour(ctx context.Context, tourID string) error {
	tour, err := h.tours.GetByID(ctx, tourID)
	if err != nil {
		return fmt.Errorf("failed to load tour %s: %w", tourID, err)
	}

	if tour == nil {
		return h.index.DeleteTour(ctx, tourID)
	}

	if err := h.index.IndexTour(ctx, tour); err != nil {
		return fmt.Errorf("failed to index tour %s: %w", tourID, err)
	}
	return nil
}

// ReindexAll переиндексирует весь каталог, ошибки отдельных туров не прерывают проход
func (h *Handlers) ReindexAll(ctx context.Context) (int, error) {
	ids, err := h.tours.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tours: %w", err)
	}

	indexed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		if err := h.SyncTour(ctx, id); err != nil {
			slog.Error("Failed to reindex tour", "tour_id", id, "error", err)
			continue
		}
		indexed++
	}

	return indexed, nil
}

func decodeRef(data []byte) (tourRef, error) {
	var ref tourRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if ref.TourID == "" {
		return ref, fmt.Errorf("event has no tour_id")
	}
	return ref, nil
}
