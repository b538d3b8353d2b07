package document

import (
	"github.com/jwebster45206/loot-list/pkg/item"
)

// Table result types
const (
	ResultText       = "text"
	ResultDocument   = "document"
	ResultCompendium = "compendium"
)

// Folder groups world documents of a single kind
type Folder struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`     // document kind held by the folder
	Contents []string `json:"contents"` // IDs of the world documents in the folder
}

// TableResult is one row of a random table
type TableResult struct {
	Type               string `json:"type"`
	Text               string `json:"text,omitempty"`
	DocumentCollection string `json:"document_collection,omitempty"`
	DocumentID         string `json:"document_id,omitempty"`
	Weight             int    `json:"weight,omitempty"`
}

// Reference returns the reference a document or compendium result points to
func (r TableResult) Reference() (string, bool) {
	if r.DocumentCollection == "" || r.DocumentID == "" {
		return "", false
	}
	switch r.Type {
	case ResultDocument:
		return r.DocumentCollection + "." + r.DocumentID, true
	case ResultCompendium:
		return CompendiumRef(r.DocumentCollection, KindItem, r.DocumentID), true
	}
	return "", false
}

// RollTable is a table of random results
type RollTable struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Formula string        `json:"formula,omitempty"`
	Results []TableResult `json:"results"`
}

// Pack is a compendium of documents of one kind
type Pack struct {
	ID    string      `json:"id"`
	Label string      `json:"label"`
	Type  string      `json:"type"` // document kind held by the pack
	Items []item.Item `json:"items,omitempty"`
}

// Find returns the pack entry with the given ID
func (p *Pack) Find(id string) (*item.Item, bool) {
	for i := range p.Items {
		if p.Items[i].ID == id {
			return &p.Items[i], true
		}
	}
	return nil, false
}
