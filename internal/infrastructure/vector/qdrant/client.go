package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

const (
	payloadDocumentID = "document_id"
	payloadSource     = "source"
	payloadSection    = "section"
	payloadPage       = "page"
	payloadTags       = "tags"
	payloadText       = "text"

	defaultGRPCPort = 6334
)

// pointNamespace makes point ids stable, so re-processing a document overwrites its points.
var pointNamespace = uuid.MustParse("6f1c1f0e-1d2b-4f57-9a38-3a0f5b6c9d10")

// Client is the fragment index on Qdrant's gRPC API.
type Client struct {
	client     *qdrant.Client
	collection string

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

// New connects to addr in host:port form; the port defaults to 6334.
func New(addr, collection, apiKey string) (*Client, error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &Client{client: client, collection: collection}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Upsert(ctx context.Context, fragments []domain.Fragment, vectors [][]float32) error {
	if len(fragments) == 0 {
		return nil
	}
	if len(fragments) != len(vectors) {
		return fmt.Errorf("fragments/vectors mismatch: %d/%d", len(fragments), len(vectors))
	}
	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(fragments))
	for i, fragment := range fragments {
		payload, err := fragmentPayload(fragment)
		if err != nil {
			return err
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(fragment)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		})
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (c *Client) SimilaritySearch(ctx context.Context, queryVector []float32, topK int) ([]domain.Fragment, error) {
	if topK <= 0 {
		topK = 5
	}
	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if isMissingCollection(err) {
			// Nothing has been ingested yet.
			return []domain.Fragment{}, nil
		}
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	out := make([]domain.Fragment, 0, len(points))
	for _, point := range points {
		out = append(out, fragmentFromPayload(point.GetPayload()))
	}
	return out, nil
}

func isMissingCollection(err error) bool {
	return status.Code(err) == codes.NotFound
}

// Ping checks that the collection endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.CollectionExists(ctx, c.collection); err != nil {
		return fmt.Errorf("qdrant ping: %w", err)
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		return nil
	}

	exists, err := c.client.CollectionExists(ctx, c.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if !exists {
		err := c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant create collection: %w", err)
		}
	}

	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func pointID(fragment domain.Fragment) string {
	return uuid.NewSHA1(pointNamespace, []byte(fragment.DocumentID+"\x00"+fragment.Section+"\x00"+fragment.Text)).String()
}

func fragmentPayload(fragment domain.Fragment) (map[string]*qdrant.Value, error) {
	tags := make([]any, 0, len(fragment.Tags))
	for _, tag := range fragment.Tags {
		tags = append(tags, tag)
	}
	payload, err := qdrant.TryValueMap(map[string]any{
		payloadDocumentID: fragment.DocumentID,
		payloadSource:     fragment.Source,
		payloadSection:    fragment.Section,
		payloadPage:       int64(fragment.Page),
		payloadTags:       tags,
		payloadText:       fragment.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("build qdrant payload: %w", err)
	}
	return payload, nil
}

func fragmentFromPayload(payload map[string]*qdrant.Value) domain.Fragment {
	fragment := domain.Fragment{
		DocumentID: payload[payloadDocumentID].GetStringValue(),
		Source:     payload[payloadSource].GetStringValue(),
		Section:    payload[payloadSection].GetStringValue(),
		Page:       int(payload[payloadPage].GetIntegerValue()),
		Text:       payload[payloadText].GetStringValue(),
	}
	for _, tag := range payload[payloadTags].GetListValue().GetValues() {
		if s := tag.GetStringValue(); s != "" {
			fragment.Tags = append(fragment.Tags, s)
		}
	}
	return fragment
}

func splitHostPort(addr string) (string, int, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0, errors.New("qdrant address is required")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultGRPCPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in qdrant address: %w", err)
	}
	return host, port, nil
}
