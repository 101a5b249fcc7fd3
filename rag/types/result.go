package types

// Result is a single record returned by a vector search, ranked by similarity to the query.
type Result struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Content   string `json:"content"`
	PageURL   string `json:"page_url"`
	PageTitle string `json:"page_title"`

	// Similarity is the score reported by the store engine for this record.
	// The higher the value, the more similar the record is to the query.
	// Engines using cosine distance report values in the range [-1, 1].
	Similarity float32 `json:"similarity"`
}

// VectorQuery describes an approximate nearest-neighbor search against a single embedding field.
type VectorQuery struct {
	// Field is the embedding field to search, e.g. content_embedding_openai.
	Field string
	// Index is the engine-side name of the similarity index built over Field.
	Index string
	// Vector is the query embedding. It must come from the same provider as Field.
	Vector []float32
	// NumCandidates is the candidate pool size explored by the index. Always >= Limit.
	NumCandidates int
	// Limit is the number of records to return.
	Limit int
}
