package models

import (
	"time"

	"cohort/internal/vectors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Profile is a member's declared identity within an organization.
// The embedding is generated from the identity fields only (background,
// expertise, interests); availability tags describe what the member
// currently wants and are deliberately kept out of the identity embedding.
type Profile struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID string             `bson:"userId" json:"user_id"`
	OrgID  string             `bson:"orgId" json:"org_id"`

	// Identity fields (embedded)
	Background string `bson:"background" json:"background"`
	Expertise  string `bson:"expertise" json:"expertise"`
	Interests  string `bson:"interests" json:"interests"`

	// Intent fields (never embedded)
	AvailabilityTags []string `bson:"availabilityTags,omitempty" json:"availability_tags,omitempty"`

	// OptedIn gates visibility in clustering and matching results
	OptedIn bool `bson:"optedIn" json:"opted_in"`

	// Embedding is stored raw and parsed through vectors.Parse so that
	// legacy string-serialized vectors decode through the same path as
	// native arrays. Writers always store a vectors.Vector.
	Embedding          interface{} `bson:"embedding,omitempty" json:"-"`
	EmbeddingUpdatedAt *time.Time  `bson:"embeddingUpdatedAt,omitempty" json:"embedding_updated_at,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// EmbeddingVector parses the stored embedding defensively. A malformed or
// wrong-dimension vector is reported as an error; callers treat it as
// absent, never as a zero vector.
func (p *Profile) EmbeddingVector(dim int) (vectors.Vector, error) {
	return vectors.Parse(p.Embedding, dim)
}

// IdentityText returns the raw identity fields for keyword pooling and
// label sampling. Embedding text construction lives in the profile text
// builder, which adds field labels and eligibility checks.
func (p *Profile) IdentityText() string {
	return p.Background + " " + p.Expertise + " " + p.Interests
}
