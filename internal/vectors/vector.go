// Package vectors provides the single vector representation used at every
// storage and service boundary, plus the distance math the matching engine
// is built on. Anything that needs to read a vector out of the database goes
// through Parse so that legacy string-serialized vectors and wrong-dimension
// data are handled in exactly one place.
package vectors

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultDim is the dimensionality produced by the embedding service
// (text-embedding-3-small compatible).
const DefaultDim = 1536

// ErrMalformed indicates a stored vector that could not be parsed or has the
// wrong dimensionality. Callers treat malformed vectors as absent, never as
// zero vectors.
var ErrMalformed = errors.New("vectors: malformed vector")

// Vector is a dense embedding. Stored in MongoDB as an array of doubles.
type Vector []float64

// Parse normalizes the various shapes a stored vector can arrive in
// ([]float64, []float32, []interface{} from bson, or a legacy JSON string)
// into a Vector. A nil or empty input returns (nil, nil): no vector is a
// valid state. expectDim of 0 skips the dimensionality check.
func Parse(raw interface{}, expectDim int) (Vector, error) {
	if raw == nil {
		return nil, nil
	}

	var v Vector
	switch t := raw.(type) {
	case Vector:
		v = t
	case []float64:
		v = Vector(t)
	case []float32:
		v = make(Vector, len(t))
		for i, f := range t {
			v[i] = float64(f)
		}
	case primitive.A:
		return Parse([]interface{}(t), expectDim)
	case []interface{}:
		v = make(Vector, len(t))
		for i, e := range t {
			switch n := e.(type) {
			case float64:
				v[i] = n
			case float32:
				v[i] = float64(n)
			case int32:
				v[i] = float64(n)
			case int64:
				v[i] = float64(n)
			default:
				return nil, fmt.Errorf("%w: element %d is %T", ErrMalformed, i, e)
			}
		}
	case string:
		return parseString(t, expectDim)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrMalformed, raw)
	}

	if len(v) == 0 {
		return nil, nil
	}
	if expectDim > 0 && len(v) != expectDim {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrMalformed, len(v), expectDim)
	}
	return v, nil
}

// parseString handles vectors that older writers serialized as JSON text.
func parseString(s string, expectDim int) (Vector, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nil, nil
	}

	var v Vector
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(v) == 0 {
		return nil, nil
	}
	if expectDim > 0 && len(v) != expectDim {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrMalformed, len(v), expectDim)
	}
	return v, nil
}

// Cosine returns the cosine similarity between a and b, in [-1, 1].
// Mismatched lengths or zero vectors yield 0.
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

// Euclidean returns the Euclidean distance between a and b.
// Mismatched lengths yield +Inf so the pair never ranks as close.
func Euclidean(a, b Vector) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Blend returns alpha*signal + (1-alpha)*base, the exponential moving
// average step used for behavior tracking. If base is empty, signal is
// returned directly (first observation seeds the vector).
func Blend(base, signal Vector, alpha float64) Vector {
	if len(base) == 0 {
		out := make(Vector, len(signal))
		copy(out, signal)
		return out
	}
	if len(signal) != len(base) {
		out := make(Vector, len(base))
		copy(out, base)
		return out
	}

	out := make(Vector, len(base))
	for i := range base {
		out[i] = alpha*signal[i] + (1-alpha)*base[i]
	}
	return out
}

// Mean returns the centroid of the given vectors. All vectors must share the
// same dimensionality; empty input returns nil.
func Mean(vecs []Vector) Vector {
	if len(vecs) == 0 {
		return nil
	}

	out := make(Vector, len(vecs[0]))
	for _, v := range vecs {
		for i := range out {
			out[i] += v[i]
		}
	}
	n := float64(len(vecs))
	for i := range out {
		out[i] /= n
	}
	return out
}
