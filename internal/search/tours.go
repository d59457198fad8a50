package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Peterdir/travel-booking-website/internal/config"
	"github.com/Peterdir/travel-booking-website/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// maxSearchHits ограничивает число идентификаторов, возвращаемых поиском
const maxSearchHits = 1000

// TourIndex представляет полнотекстовый индекс туров в Elasticsearch
type TourIndex struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
}

// TourDocument - документ тура в индексе
type TourDocument struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Days        int       `json:"days"`
	IsActive    bool      `json:"isActive"`
	StartDates  []string  `json:"startDates"`
	SeatsLeft   int       `json:"seatsLeft"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewTourDocument строит документ индекса из тура
func NewTourDocument(tour *models.Tour) TourDocument {
	dates := make([]string, 0, len(tour.StartDates))
	for _, d := range tour.StartDates {
		dates = append(dates, d.String())
	}
	return TourDocument{
		ID:          tour.ID,
		Slug:        tour.Slug,
		Name:        tour.Name,
		Location:    tour.Location,
		Description: tour.Description,
		Price:       tour.Price,
		Days:        tour.Days,
		IsActive:    tour.IsActive,
		StartDates:  dates,
		SeatsLeft:   tour.SeatsLeft(),
		UpdatedAt:   tour.UpdatedAt,
	}
}

// NewTourIndex создает клиент Elasticsearch и индекс туров, если его еще нет
func NewTourIndex(cfg config.ElasticsearchConfig) (*TourIndex, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	idx := &TourIndex{
		client:  es,
		index:   cfg.Index,
		timeout: cfg.Timeout,
	}

	ctx, cancel := idx.withTimeout(context.Background())
	defer cancel()

	if err := idx.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return idx, nil
}

func (i *TourIndex) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, i.timeout)
}

// indexMapping описывает анализатор, снимающий диакритику ("Đà Lạt" == "da lat")
func indexMapping() map[string]interface{} {
	folded := map[string]interface{}{
		"type":     "text",
		"analyzer": "folding",
		"fields": map[string]interface{}{
			"keyword": map[string]interface{}{
				"type":         "keyword",
				"ignore_above": 256,
			},
		},
	}

	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"analysis": map[string]interface{}{
				"analyzer": map[string]interface{}{
					"folding": map[string]interface{}{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "asciifolding"},
					},
				},
			},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":          map[string]interface{}{"type": "keyword"},
				"slug":        map[string]interface{}{"type": "keyword"},
				"name":        folded,
				"location":    folded,
				"description": map[string]interface{}{"type": "text", "analyzer": "folding"},
				"price":       map[string]interface{}{"type": "long"},
				"days":        map[string]interface{}{"type": "integer"},
				"isActive":    map[string]interface{}{"type": "boolean"},
				"startDates":  map[string]interface{}{"type": "date", "format": "yyyy-MM-dd"},
				"seatsLeft":   map[string]interface{}{"type": "integer"},
				"updatedAt":   map[string]interface{}{"type": "date"},
			},
		},
	}
}

// ensureIndex создает индекс если он не существует
func (i *TourIndex) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{i.index},
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Elasticsearch index already exists", "index", i.index)
		return nil
	}

	body, err := json.Marshal(indexMapping())
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: i.index,
		Body:  bytes.NewReader(body),
	}

	createRes, err := createReq.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	// 400 resource_already_exists при гонке двух процессов
	if createRes.IsError() && !strings.Contains(createRes.String(), "resource_already_exists_exception") {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", i.index)
	return nil
}

// buildSearchQuery строит поисковый запрос по названию, локации и описанию
func buildSearchQuery(q string) map[string]interface{} {
	q = strings.TrimSpace(q)
	if q == "" {
		return map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}

	return map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":     q,
			"fields":    []string{"name^3", "location^2", "description"},
			"fuzziness": "AUTO",
			"operator":  "and",
		},
	}
}

// SearchTourIDs возвращает идентификаторы туров, подходящих под текстовый запрос, по убыванию релевантности
func (i *TourIndex) SearchTourIDs(ctx context.Context, q string) ([]string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":   buildSearchQuery(q),
		"_source": []string{"id"},
		"size":    maxSearchHits,
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"id": map[string]interface{}{"order": "asc"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	ids := make([]string, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		ids = append(ids, hit.ID)
	}

	return ids, nil
}

// IndexTour индексирует или перезаписывает документ тура
func (i *TourIndex) IndexTour(ctx context.Context, tour *models.Tour) error {
	body, err := json.Marshal(NewTourDocument(tour))
	if err != nil {
		return fmt.Errorf("failed to marshal tour: %w", err)
	}

	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: tour.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to index tour: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}

	return nil
}

// DeleteTour удаляет документ тура, отсутствие документа не считается ошибкой
func (i *TourIndex) DeleteTour(ctx context.Context, id string) error {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	req := esapi.DeleteRequest{
		Index:      i.index,
		DocumentID: id,
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to delete tour: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete error: %s", res.String())
	}

	return nil
}

// Count возвращает количество документов в индексе
func (i *TourIndex) Count(ctx context.Context) (int64, error) {
	req := esapi.CountRequest{
		Index: []string{i.index},
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return 0, fmt.Errorf("failed to execute count: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count error: %s", res.String())
	}

	var response struct {
		Count int64 `json:"count"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}

	return response.Count, nil
}

// HealthCheck проверяет состояние Elasticsearch
func (i *TourIndex) HealthCheck(ctx context.Context) error {
	req := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}

	return nil
}
