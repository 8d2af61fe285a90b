package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	OrgID    string `json:"orgId"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// Query describes a search request. OrgID is mandatory; results never cross
// organizations.
type Query struct {
	OrgID  string
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push issues into a search index.
type Indexer interface {
	IndexIssue(record IssueRecord) error
	DeleteIssue(id string) error
}

// IssueRecord is the data we index for an issue.
type IssueRecord struct {
	ID          string   `json:"id"`
	OrgID       string   `json:"orgId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags"`
}
