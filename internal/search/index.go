// Package search holds the remote semantic search client and a local Bleve
// keyword index over bookmarked posts for offline use.
package search

import (
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/cockroachdb/errors"

	"github.com/renderinc/reddit-stash/internal/storage"
)

// Index wraps a Bleve search index
type Index struct {
	index bleve.Index
}

// IndexedPost is the document stored per post
type IndexedPost struct {
	ID        string
	Title     string
	Body      string
	Notes     string
	Summary   string
	Author    string
	Subreddit string
	URL       string
	AddedAt   time.Time
}

// LocalHit is a keyword search result
type LocalHit struct {
	PostID    int64
	Title     string
	Subreddit string
	URL       string
	Score     float64
	Fragments map[string][]string // Highlighted snippets
}

// Open opens or creates a Bleve index at path
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, errors.Wrap(err, "create index")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "open index")
	}

	return &Index{index: idx}, nil
}

// OpenMem creates an index that lives only in memory
func OpenMem() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, errors.Wrap(err, "create memory index")
	}
	return &Index{index: idx}, nil
}

// buildIndexMapping creates the post mapping; titles use the English analyzer
// for stemming
func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("Body", textFieldMapping)
	docMapping.AddFieldMappingsAt("Notes", textFieldMapping)
	docMapping.AddFieldMappingsAt("Summary", textFieldMapping)
	docMapping.AddFieldMappingsAt("Author", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Subreddit", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("URL", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("AddedAt", bleve.NewDateTimeFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func toIndexed(p *storage.Post) *IndexedPost {
	doc := &IndexedPost{
		ID:        docID(p.ID),
		Title:     p.CanonicalTitle(),
		Body:      p.CanonicalBody(),
		Author:    p.Author,
		Subreddit: p.Subreddit,
		URL:       p.URL,
		AddedAt:   p.AddedAt,
	}
	if p.Notes != nil {
		doc.Notes = *p.Notes
	}
	if p.Summary != nil {
		doc.Summary = *p.Summary
	}
	return doc
}

// IndexPost adds or updates a post. Deleted posts are removed instead.
func (i *Index) IndexPost(p *storage.Post) error {
	if p.IsDeleted {
		return i.Delete(p.ID)
	}
	doc := toIndexed(p)
	return i.index.Index(doc.ID, doc)
}

// Delete removes a post from the index
func (i *Index) Delete(id int64) error {
	return i.index.Delete(docID(id))
}

// Search performs a query string search (quotes, +/-, field:value, fuzzy ~)
func (i *Index) Search(queryStr string, limit int) ([]*LocalHit, error) {
	if limit <= 0 {
		limit = DefaultK
	}

	query := bleve.NewQueryStringQuery(queryStr)

	search := bleve.NewSearchRequestOptions(query, limit, 0, false)
	search.Highlight = bleve.NewHighlightWithStyle("ansi")
	search.Fields = []string{"Title", "Subreddit", "URL"}

	results, err := i.index.Search(search)
	if err != nil {
		return nil, errors.Wrap(err, "search")
	}

	hits := make([]*LocalHit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}

		result := &LocalHit{
			PostID:    id,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}
		if title, ok := hit.Fields["Title"].(string); ok {
			result.Title = title
		}
		if sub, ok := hit.Fields["Subreddit"].(string); ok {
			result.Subreddit = sub
		}
		if url, ok := hit.Fields["URL"].(string); ok {
			result.URL = url
		}

		hits = append(hits, result)
	}

	return hits, nil
}

// Rebuild replaces the index contents with posts, skipping deleted ones
func (i *Index) Rebuild(posts []*storage.Post) error {
	count, err := i.index.DocCount()
	if err != nil {
		return errors.Wrap(err, "count documents")
	}

	batch := i.index.NewBatch()

	if count > 0 {
		all := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
		existing, err := i.index.Search(all)
		if err != nil {
			return errors.Wrap(err, "list documents")
		}
		for _, hit := range existing.Hits {
			batch.Delete(hit.ID)
		}
	}

	for _, p := range posts {
		if p.IsDeleted {
			continue
		}
		doc := toIndexed(p)
		if err := batch.Index(doc.ID, doc); err != nil {
			return errors.Wrapf(err, "batch index post %d", p.ID)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return errors.Wrap(err, "commit batch")
	}

	return nil
}

// Count returns the number of posts in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
