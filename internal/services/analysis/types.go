package analysis

// ItemStatus is the enrichment state the analysis pipeline tracks per item.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusAnalyzing ItemStatus = "analyzing"
	ItemStatusAnalyzed  ItemStatus = "analyzed"
	ItemStatusError     ItemStatus = "error"
)

// Item describes a catalog entry known to the analysis pipeline.
type Item struct {
	ID       int64      `json:"id"`
	Filename string     `json:"filename"`
	FilePath string     `json:"file_path"`
	Status   ItemStatus `json:"status"`
}

// Result is the analysis pipeline's output for one item.
type Result struct {
	ItemID         int64    `json:"item_id"`
	Description    string   `json:"description"`
	Tags           []string `json:"tags"`
	Themes         []string `json:"themes"`
	EmotionalTone  string   `json:"emotional_tone"`
	Intensity      int      `json:"intensity"`
	ViralPotential int      `json:"viral_potential"`
	EmbeddingID    string   `json:"embedding_id"`
}

type statusUpdate struct {
	Status ItemStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
