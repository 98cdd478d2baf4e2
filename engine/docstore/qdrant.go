package docstore

import (
	"context"
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// pointsAPI is the subset of pb.PointsClient the store calls.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store calls.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Qdrant is the sole owner of all Qdrant operations.
type Qdrant struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// NewQdrant connects to Qdrant's gRPC endpoint at addr.
func NewQdrant(addr, collection string) (*Qdrant, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("docstore: dial qdrant %s: %w", addr, err)
	}
	q := NewQdrantWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection)
	q.conn = conn
	return q, nil
}

// NewQdrantWithClients builds a store over existing clients.
func NewQdrantWithClients(points pointsAPI, collections collectionsAPI, collection string) *Qdrant {
	return &Qdrant{points: points, collections: collections, collection: collection}
}

func (q *Qdrant) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// EnsureCollection creates the collection and its full-text index on the
// text field if the collection doesn't exist.
func (q *Qdrant) EnsureCollection(ctx context.Context, dims int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("docstore: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("docstore: create collection %s: %w", q.collection, err)
	}

	wait, lowercase := true, true
	fieldType := pb.FieldType_FieldTypeText
	_, err = q.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: q.collection,
		Wait:           &wait,
		FieldName:      TextKey,
		FieldType:      &fieldType,
		FieldIndexParams: &pb.PayloadIndexParams{
			IndexParams: &pb.PayloadIndexParams_TextIndexParams{
				TextIndexParams: &pb.TextIndexParams{
					Tokenizer: pb.TokenizerType_Word,
					Lowercase: &lowercase,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("docstore: index %s.%s: %w", q.collection, TextKey, err)
	}
	return nil
}

func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points); err != nil {
		return err
	}

	structs := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		payload := make(map[string]*pb.Value, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = toValue(v)
		}
		structs[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: p.ID}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("docstore: upsert %d points: %w", len(points), err)
	}
	return nil
}

func (q *Qdrant) SearchByVector(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vec,
		Limit:          uint64(k),
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: search: %w", err)
	}
	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = Hit{ID: r.GetId().GetNum(), Score: float64(r.GetScore()), Payload: fromPayload(r.GetPayload())}
	}
	return hits, nil
}

// SearchByText scrolls the points whose indexed text matches any term.
func (q *Qdrant) SearchByText(ctx context.Context, terms []string, k int) ([]Hit, error) {
	should := make([]*pb.Condition, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			should = append(should, textMatch(TextKey, t))
		}
	}
	if k <= 0 || len(should) == 0 {
		return []Hit{}, nil
	}

	limit := uint32(k)
	resp, err := q.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: q.collection,
		Filter:         &pb.Filter{Should: should},
		Limit:          &limit,
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: scroll: %w", err)
	}
	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = Hit{ID: r.GetId().GetNum(), Payload: fromPayload(r.GetPayload())}
	}
	return hits, nil
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func textMatch(key, text string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Text{Text: text}},
			},
		},
	}
}

func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int32:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(tv)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case map[string]any:
		fields := make(map[string]*pb.Value, len(tv))
		for k, e := range tv {
			fields[k] = toValue(e)
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	case []any:
		vals := make([]*pb.Value, len(tv))
		for i, e := range tv {
			vals[i] = toValue(e)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	case []string:
		vals := make([]*pb.Value, len(tv))
		for i, e := range tv {
			vals[i] = toValue(e)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_StructValue:
		return fromPayload(k.StructValue.GetFields())
	case *pb.Value_ListValue:
		out := make([]any, len(k.ListValue.GetValues()))
		for i, e := range k.ListValue.GetValues() {
			out[i] = fromValue(e)
		}
		return out
	default:
		return nil
	}
}

func fromPayload(p map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = fromValue(v)
	}
	return out
}
