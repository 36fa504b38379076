package service

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VectorIndexGateway abstracts the vector store for lifecycle operations.
// All operations are idempotent: a filter matching no points is success.
type VectorIndexGateway interface {
	// SetArchivedFlag tags or untags every point belonging to a document.
	// Search must always filter on this flag, so flipping it is how archive
	// hides a document without deleting its embeddings.
	SetArchivedFlag(ctx context.Context, documentID string, archived bool) error
	// DeleteByDocument removes every point belonging to a document. Only
	// purge, clear and replace call this.
	DeleteByDocument(ctx context.Context, documentID string) error
}

// qdrantPointsClient is the slice of the Qdrant client the gateway needs.
type qdrantPointsClient interface {
	SetPayload(ctx context.Context, request *qdrant.SetPayloadPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
}

// QdrantGateway implements VectorIndexGateway on a Qdrant collection where
// each point carries a document_id and an archived payload field.
type QdrantGateway struct {
	client     qdrantPointsClient
	collection string
	logger     *zap.Logger
}

// NewQdrantGateway constructs the gateway.
func NewQdrantGateway(client qdrantPointsClient, collection string, logger *zap.Logger) *QdrantGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantGateway{client: client, collection: collection, logger: logger}
}

func (g *QdrantGateway) SetArchivedFlag(ctx context.Context, documentID string, archived bool) error {
	wait := true
	_, err := g.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: g.collection,
		Payload: map[string]*qdrant.Value{
			"archived": qdrant.NewValueBool(archived),
		},
		PointsSelector: qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
		Wait:           &wait,
	})
	if err != nil {
		if isVectorNotFound(err) {
			return nil
		}
		return fmt.Errorf("set archived flag for document %s: %w", documentID, err)
	}
	return nil
}

func (g *QdrantGateway) DeleteByDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := g.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: g.collection,
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
		Wait:           &wait,
	})
	if err != nil {
		if isVectorNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete vectors for document %s: %w", documentID, err)
	}
	return nil
}

func documentFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("document_id", documentID),
		},
	}
}

// isVectorNotFound reports whether the store replied "nothing matched",
// which the lifecycle contract treats as success rather than failure.
func isVectorNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
