package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

// matterDocument is the indexed projection of a matter.
type matterDocument struct {
	ID          int64  `json:"id"`
	Caseref     string `json:"caseref"`
	Country     string `json:"country"`
	Category    string `json:"category"`
	Origin      string `json:"origin,omitempty"`
	TypeCode    string `json:"type_code,omitempty"`
	Responsible string `json:"responsible,omitempty"`
	Dead        bool   `json:"dead"`
}

// MatterIndexer implements the matter search port over OpenSearch.
type MatterIndexer struct {
	client *Client
	logger logging.Logger
}

// NewMatterIndexer constructs a ready-to-use MatterIndexer.
func NewMatterIndexer(client *Client, logger logging.Logger) *MatterIndexer {
	return &MatterIndexer{client: client, logger: logger.Named("matter-indexer")}
}

// Index writes (or overwrites) the matter's search document.
func (i *MatterIndexer) Index(ctx context.Context, m *matter.Matter) error {
	doc := matterDocument{
		ID:          m.ID,
		Caseref:     m.Caseref,
		Country:     m.Country,
		Category:    string(m.Category),
		Origin:      m.Origin,
		TypeCode:    m.TypeCode,
		Responsible: m.Responsible,
		Dead:        m.Dead,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "marshal matter document")
	}

	req := opensearchapi.IndexRequest{
		Index:      i.client.MatterIndex(),
		DocumentID: strconv.FormatInt(m.ID, 10),
		Body:       bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, i.client.OpenSearch())
	if err != nil {
		return errors.Wrap(err, errors.CodeSearchError, "index matter")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return errors.Newf(errors.CodeSearchError, "index matter status %s", resp.Status())
	}
	return nil
}

// Remove deletes the matter's search document.  A missing document is fine.
func (i *MatterIndexer) Remove(ctx context.Context, id int64) error {
	req := opensearchapi.DeleteRequest{
		Index:      i.client.MatterIndex(),
		DocumentID: strconv.FormatInt(id, 10),
	}
	resp, err := req.Do(ctx, i.client.OpenSearch())
	if err != nil {
		return errors.Wrap(err, errors.CodeSearchError, "delete matter document")
	}
	defer resp.Body.Close()
	if resp.IsError() && resp.StatusCode != 404 {
		return errors.Newf(errors.CodeSearchError, "delete matter document status %s", resp.Status())
	}
	return nil
}

// Search runs a prefix-friendly multi-field query and returns matching
// matter IDs in relevance order plus the total hit count.
func (i *MatterIndexer) Search(ctx context.Context, query string, p common.Pagination) ([]int64, int64, error) {
	q := map[string]interface{}{
		"from": p.Offset(),
		"size": p.PageSize,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"caseref^3", "country", "responsible", "type_code"},
				"type":   "bool_prefix",
			},
		},
		"_source": []string{"id"},
	}
	body, err := json.Marshal(q)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeSerialization, "marshal search query")
	}

	req := opensearchapi.SearchRequest{
		Index: []string{i.client.MatterIndex()},
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, i.client.OpenSearch())
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeSearchError, "search matters")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, 0, errors.Newf(errors.CodeSearchError, "search matters status %s", resp.Status())
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source matterDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeSerialization, "decode search response")
	}

	ids := make([]int64, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		ids = append(ids, h.Source.ID)
	}
	i.logger.Debug("matter search",
		logging.String("query", query),
		logging.Int("hits", len(ids)))
	return ids, parsed.Hits.Total.Value, nil
}

// EnsureIndex creates the matter index with its mapping when absent.
func (i *MatterIndexer) EnsureIndex(ctx context.Context) error {
	index := i.client.MatterIndex()

	exists := opensearchapi.IndicesExistsRequest{Index: []string{index}}
	resp, err := exists.Do(ctx, i.client.OpenSearch())
	if err != nil {
		return errors.Wrap(err, errors.CodeSearchError, "check matter index")
	}
	resp.Body.Close()
	if resp.StatusCode == 200 {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":          map[string]string{"type": "long"},
				"caseref":     map[string]string{"type": "search_as_you_type"},
				"country":     map[string]string{"type": "keyword"},
				"category":    map[string]string{"type": "keyword"},
				"origin":      map[string]string{"type": "keyword"},
				"type_code":   map[string]string{"type": "keyword"},
				"responsible": map[string]string{"type": "keyword"},
				"dead":        map[string]string{"type": "boolean"},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "marshal index mapping")
	}

	create := opensearchapi.IndicesCreateRequest{Index: index, Body: bytes.NewReader(body)}
	cresp, err := create.Do(ctx, i.client.OpenSearch())
	if err != nil {
		return errors.Wrap(err, errors.CodeSearchError, "create matter index")
	}
	defer cresp.Body.Close()
	if cresp.IsError() {
		return fmt.Errorf("create matter index: status %s", cresp.Status())
	}
	i.logger.Info("matter index created", logging.String("index", index))
	return nil
}
