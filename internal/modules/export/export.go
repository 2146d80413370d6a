// Package export renders diaries and cards as CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/sanitize"
)

var (
	diaryHeader = []string{"id", "clientId", "name", "gender", "url", "cardReadingCount", "createdAt", "updatedAt"}
	cardHeader  = []string{"order", "topic", "body"}
)

type Diaries interface {
	All(ctx context.Context) ([]models.Diary, error)
	Get(ctx context.Context, id string) (*models.Diary, error)
}

type Cards interface {
	List(ctx context.Context, diaryID string) ([]models.Card, error)
}

type Service struct {
	diaries Diaries
	cards   Cards
	logger  *zap.Logger
}

func NewService(diaries Diaries, cards Cards, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{diaries: diaries, cards: cards, logger: logger.Named("ExportService")}
}

// WriteDiaries writes every diary, newest first.
func (s *Service) WriteDiaries(ctx context.Context, w io.Writer) (int, error) {
	items, err := s.diaries.All(ctx)
	if err != nil {
		return 0, err
	}
	rows := make([][]string, 0, len(items))
	for _, d := range items {
		rows = append(rows, []string{
			d.ID,
			d.ClientID,
			d.Name,
			d.Gender,
			d.URL,
			strconv.FormatInt(d.CardReadingCount, 10),
			formatTime(d.CreatedAt),
			formatTime(d.UpdatedAt),
		})
	}
	return len(rows), writeCSV(w, diaryHeader, rows)
}

// WriteCards writes one diary's cards in display order with bodies as plain text.
func (s *Service) WriteCards(ctx context.Context, w io.Writer, diaryID string) (int, error) {
	if _, err := s.diaries.Get(ctx, diaryID); err != nil {
		return 0, err
	}
	cards, err := s.cards.List(ctx, diaryID)
	if err != nil {
		return 0, err
	}
	rows := make([][]string, 0, len(cards))
	for _, c := range cards {
		rows = append(rows, []string{
			strconv.FormatFloat(c.Order, 'f', -1, 64),
			c.Topic,
			sanitize.Text(c.BodyText),
		})
	}
	return len(rows), writeCSV(w, cardHeader, rows)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
