package domain

import "time"

// Domain contains core models shared by the harvesting pipeline.

// RunMode selects whether a run re-extracts every discovered URL or only new ones.
type RunMode string

const (
	ModeFull   RunMode = "full"
	ModeUpdate RunMode = "update"
)

// ParseRunMode resolves a textual mode, defaulting to update.
func ParseRunMode(raw string) (RunMode, bool) {
	switch RunMode(raw) {
	case ModeFull:
		return ModeFull, true
	case ModeUpdate, "":
		return ModeUpdate, true
	default:
		return "", false
	}
}

// Thumbnail is the minimal listing-page reference to an article.
type Thumbnail struct {
	URL             string
	Title           string
	ApproximateDate time.Time
	PageIndex       int
}

// RawArticle holds extracted fields before cleaning and validation.
type RawArticle struct {
	URL           string
	Title         string
	Body          string
	PublishedDate string
	Tags          []string
	RetrievedAt   time.Time
}

// Article is a validated article record; URL is the primary key within a site.
type Article struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	PublishedDate time.Time `json:"published_date"`
	Tags          []string  `json:"tags"`
	Country       string    `json:"country"`
	SourceName    string    `json:"source_name"`
	RetrievedAt   time.Time `json:"retrieved_at"`
}

// Stage identifies where in the pipeline a record failed.
type Stage string

const (
	StageListing    Stage = "listing"
	StageExtraction Stage = "extraction"
	StageValidation Stage = "validation"
)

// Failure is an append-only forensic record of a per-record failure.
type Failure struct {
	URL       string
	Stage     Stage
	Reason    string
	Timestamp time.Time
}
