package mcp

// SearchRecordsInput defines the input schema for the search_records tool.
type SearchRecordsInput struct {
	Query string `json:"query" jsonschema:"the search query to run against the records corpus"`
	Kind  string `json:"kind,omitempty" jsonschema:"filter by record kind: ordinance, minutes, budget, or notice"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchRecordsOutput defines the output schema for the search_records tool.
type SearchRecordsOutput struct {
	Query    string         `json:"query" jsonschema:"the raw query as submitted"`
	Terms    []string       `json:"terms" jsonschema:"the sanitized terms the index actually matched"`
	Variant  string         `json:"variant,omitempty" jsonschema:"index variant that answered: stemmed or prefix"`
	Fallback bool           `json:"fallback" jsonschema:"true when stemmed matching found nothing and prefix matching answered"`
	Count    int            `json:"count" jsonschema:"number of results returned"`
	Results  []RecordResult `json:"results" jsonschema:"list of matching records"`
}

// RecordResult is a single search result joined with record metadata.
type RecordResult struct {
	ID         string  `json:"id" jsonschema:"record identifier, usable with get_record"`
	Kind       string  `json:"kind" jsonschema:"record kind: ordinance, minutes, budget, or notice"`
	Number     string  `json:"number,omitempty" jsonschema:"official document number, e.g. 2024-17"`
	Title      string  `json:"title" jsonschema:"record title"`
	Date       string  `json:"date,omitempty" jsonschema:"record date as YYYY-MM-DD"`
	FiscalYear int     `json:"fiscal_year,omitempty" jsonschema:"fiscal year for budget records"`
	Path       string  `json:"path" jsonschema:"corpus-relative source path"`
	Score      float64 `json:"score" jsonschema:"relevance score, higher is better"`
	Snippet    string  `json:"snippet,omitempty" jsonschema:"body excerpt with matches wrapped in <mark> tags"`
}

// GetRecordInput defines the input schema for the get_record tool.
type GetRecordInput struct {
	ID string `json:"id" jsonschema:"the record identifier, as returned by search_records"`
}

// GetRecordOutput defines the output schema for the get_record tool.
type GetRecordOutput struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Number     string `json:"number,omitempty"`
	Title      string `json:"title"`
	Date       string `json:"date,omitempty"`
	FiscalYear int    `json:"fiscal_year,omitempty"`
	Path       string `json:"path"`
	Body       string `json:"body" jsonschema:"the full record text"`
}

// StatsOutput is the JSON structure of the cividex://stats resource.
type StatsOutput struct {
	Backend       string         `json:"backend"`
	DocumentCount int            `json:"document_count"`
	RecordCount   int            `json:"record_count"`
	Kinds         map[string]int `json:"kinds"`
	CorpusRoot    string         `json:"corpus_root,omitempty"`
	LastIngest    string         `json:"last_ingest,omitempty"`
	Version       string         `json:"version"`
}
