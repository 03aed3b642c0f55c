package models

// metadata keys
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaRowIndex   = "row_index"
	MetaSheet      = "sheet"
	MetaTitle      = "title"
	MetaTruncated  = "truncated"
)

const (
	TruncationMarker = "... (content truncated)"

	CSVRecordSentence = "\n\nThis record contains user ID %v with event type %v."

	CSVNote = "\n\nNote: This data comes from the uploaded CSV file. If you need to extract specific user IDs or event types, please analyze the content carefully."

	RelevancePromptTemplate = "Question: %s\nDocument: %s\nHow relevant is this document to the question? Reply with a score from 1 (not relevant) to 10 (highly relevant)."
)

var (
	// CSVKeywords trigger the CSV note on the top retrieval result
	CSVKeywords = []string{"userid", "user id", "eventtype", "event type"}

	// SummaryFields are the lower-cased column names echoed in a CSV row summary
	SummaryFields = map[string]bool{
		"userid":     true,
		"user_id":    true,
		"eventtype":  true,
		"event_type": true,
		"event":      true,
		"user":       true,
	}
)
