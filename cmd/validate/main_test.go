package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jwebster45206/loot-list/pkg/loot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, root, dir, name, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	path := filepath.Join(root, dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestValidateFile(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name    string
		dir     string
		file    string
		body    string
		wantErr string
	}{
		{
			name: "valid item",
			dir:  "items", file: "rope.json",
			body: `{"name":"Rope","type":"equipment","system":{"quantity":1}}`,
		},
		{
			name: "item without name",
			dir:  "items", file: "blank.json",
			body:    `{"type":"loot","system":{"quantity":1}}`,
			wantErr: "has no name",
		},
		{
			name: "unknown item field",
			dir:  "items", file: "extra.json",
			body:    `{"name":"Rope","type":"equipment","colour":"red","system":{}}`,
			wantErr: "strict JSON",
		},
		{
			name: "valid actor with loot list",
			dir:  "actors", file: "chest.json",
			body: `{"name":"Chest","type":"npc","flags":{"simple-loot-list":{"loot-list":[{"uuid":"Item.rope","quantity":"1d4"}],"currencies":{"gp":"2d6"}}}}`,
		},
		{
			name: "actor with bad formula",
			dir:  "actors", file: "broken.json",
			body:    `{"name":"Broken","flags":{"simple-loot-list":{"loot-list":[{"uuid":"Item.rope","quantity":"1d"}]}}}`,
			wantErr: "not a valid formula",
		},
		{
			name: "actor with unknown currency",
			dir:  "actors", file: "odd.json",
			body:    `{"name":"Odd","flags":{"simple-loot-list":{"currencies":{"zz":"1"}}}}`,
			wantErr: "unknown currency 'zz'",
		},
		{
			name: "table with unknown result type",
			dir:  "tables", file: "hoard.json",
			body:    `{"name":"Hoard","results":[{"type":"spell","text":"x"}]}`,
			wantErr: "unknown type 'spell'",
		},
		{
			name: "table document result without id",
			dir:  "tables", file: "gems.json",
			body:    `{"name":"Gems","results":[{"type":"document","document_collection":"Item"}]}`,
			wantErr: "missing its collection or document id",
		},
		{
			name: "pack with duplicate entries",
			dir:  "packs", file: "srd.json",
			body:    `{"label":"SRD","type":"Item","items":[{"id":"a","name":"A","type":"loot","system":{}},{"id":"a","name":"B","type":"loot","system":{}}]}`,
			wantErr: "duplicate entry 'a'",
		},
		{
			name: "folder without type",
			dir:  "folders", file: "misc.json",
			body:    `{"name":"Misc","contents":["rope"]}`,
			wantErr: "no document type",
		},
		{
			name: "invalid json",
			dir:  "items", file: "bad.json",
			body:    `{"name":`,
			wantErr: "invalid JSON",
		},
		{
			name: "unknown directory",
			dir:  "scenes", file: "x.json",
			body:    `{}`,
			wantErr: "not in a known document directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeDoc(t, root, tt.dir, tt.file, tt.body)
			v := &DataValidator{cfg: loot.DefaultConfig()}
			err := v.validateFile(path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "items", "rope.json", `{}`)
	writeDoc(t, root, "actors", "chest.json", `{}`)
	writeDoc(t, root, "scenes", "ignored.json", `{}`)

	files, err := collectFiles(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "items", "rope.json"),
		filepath.Join(root, "actors", "chest.json"),
	}, files)

	single, err := collectFiles(filepath.Join(root, "items", "rope.json"))
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = collectFiles(filepath.Join(root, "missing"))
	assert.Error(t, err)
}
