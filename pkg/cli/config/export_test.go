package config

// NewGeminiForTest creates a Gemini config for testing purposes
func NewGeminiForTest(projectID, location string, embeddingDimension int) *Gemini {
	return &Gemini{
		projectID:          projectID,
		location:           location,
		embeddingDimension: embeddingDimension,
	}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, sqlitePath string) *Repository {
	return &Repository{
		backend:    backend,
		sqlitePath: sqlitePath,
	}
}
