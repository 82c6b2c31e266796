package platform

import "time"

// List is the envelope the platform uses for collection endpoints
type List[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

type File struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	Status    string    `json:"status"` // "uploaded","processing","ready","failed"
	CreatedAt time.Time `json:"created_at"`
}

type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FileIDs   []string  `json:"file_ids"`
	RowCount  int       `json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
}

type Embedding struct {
	ID        string    `json:"id"`
	DatasetID string    `json:"dataset_id"`
	Model     string    `json:"model"`
	Status    string    `json:"status"`
	Vectors   int       `json:"vectors"`
	CreatedAt time.Time `json:"created_at"`
}

type Model struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Provider      string  `json:"provider"`
	ContextWindow int     `json:"context_window"`
	Temperature   float64 `json:"temperature"`
	SystemPrompt  string  `json:"system_prompt,omitempty"`
}

type Chat struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	ModelID          string    `json:"model_id"`
	KnowledgeStoreID *string   `json:"knowledge_store_id"`
	Messages         int       `json:"messages"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type KnowledgeStore struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	EmbeddingIDs []string  `json:"embedding_ids"`
	Documents    int       `json:"documents"`
	CreatedAt    time.Time `json:"created_at"`
}

type Integration struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"` // "slack","discord","web_widget",...
	Enabled   bool   `json:"enabled"`
	ChatbotID string `json:"chatbot_id"`
}

// MCPConfig lists the MCP servers exposed to the user's chatbots
type MCPConfig struct {
	Servers []MCPServer `json:"servers"`
}

type MCPServer struct {
	Name      string            `json:"name"`
	Transport string            `json:"transport"` // "stdio","sse","http"
	URL       string            `json:"url,omitempty"`
	Command   string            `json:"command,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Enabled   bool              `json:"enabled"`
}

type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

type Usage struct {
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	Messages     int       `json:"messages"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	StorageBytes int64     `json:"storage_bytes"`
}
