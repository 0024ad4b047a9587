package memory

import (
	"math"
	"reflect"
)

// SimilarityFunc scores how well an item matches a query, in [0, 1].
// It is caller logic: a panic propagates out of Recall.
type SimilarityFunc func(query any, item *Item) float64

// FieldMatchSimilarity is the default scorer.
//
// A map query scores the fraction of its keys present in the payload with an
// equal value (an empty map matches everything). Any other query scores 1 when
// some payload value equals it and 0 otherwise.
func FieldMatchSimilarity(query any, item *Item) float64 {
	if q, ok := query.(map[string]any); ok {
		if len(q) == 0 {
			return 1
		}
		matched := 0
		for k, want := range q {
			if got, ok := item.Payload[k]; ok && reflect.DeepEqual(got, want) {
				matched++
			}
		}
		return float64(matched) / float64(len(q))
	}

	for _, v := range item.Payload {
		if reflect.DeepEqual(v, query) {
			return 1
		}
	}
	return 0
}

// VectorSimilarity scores by cosine similarity between the query vector and the
// embedding stored under field. Negative similarity clamps to 0.
func VectorSimilarity(field string) SimilarityFunc {
	return func(query any, item *Item) float64 {
		q, ok := toFloats(query)
		if !ok {
			return 0
		}
		v, ok := toFloats(item.Payload[field])
		if !ok {
			return 0
		}
		return math.Max(0, cosineSimilarity(q, v))
	}
}

// toFloats accepts the vector shapes that show up after JSON decoding as well
// as native slices.
func toFloats(v any) ([]float64, bool) {
	switch x := v.(type) {
	case []float64:
		return x, true
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out, true
	case []any:
		out := make([]float64, len(x))
		for i, e := range x {
			f, ok := e.(float64)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
