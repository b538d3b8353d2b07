package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/loot-list/internal/storage"
	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/dice"
	"github.com/jwebster45206/loot-list/pkg/document"
	"github.com/jwebster45206/loot-list/pkg/item"
	"github.com/jwebster45206/loot-list/pkg/loot"
)

func main() {
	namespace := flag.String("namespace", loot.DefaultConfig().Namespace, "flag namespace holding loot lists")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-namespace ns] <data dir | document.json>...\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := loot.DefaultConfig()
	cfg.Namespace = *namespace
	validator := &DataValidator{cfg: cfg}

	failed := false
	for _, path := range flag.Args() {
		files, err := collectFiles(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			os.Exit(1)
		}
		for _, f := range files {
			if err := validator.validateFile(f); err != nil {
				fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
				failed = true
			}
		}
	}
	if failed {
		os.Exit(1)
	}

	fmt.Println("Data files are valid!")
}

// collectFiles expands a data directory into the JSON files of its known
// document directories
func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	for _, dir := range []string{storage.ActorsDir, storage.ItemsDir, storage.FoldersDir, storage.TablesDir, storage.PacksDir} {
		matches, err := filepath.Glob(filepath.Join(path, dir, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		files = append(files, matches...)
	}
	return files, nil
}

// DataValidator checks world documents and actor records
type DataValidator struct {
	cfg    loot.Config
	errors []string
}

func (v *DataValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, ".json") {
		return fmt.Errorf("document file must have .json extension: %s", baseName)
	}
	id := strings.TrimSuffix(baseName, ".json")
	if !isValidID(id) {
		return fmt.Errorf("document filename '%s' may only contain letters, digits, '-' and '_'", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("file %s contains invalid JSON", filename)
	}

	v.errors = nil
	switch kind := filepath.Base(filepath.Dir(filename)); kind {
	case storage.ActorsDir:
		rec, err := actor.LoadRecord(filename)
		if err != nil {
			return fmt.Errorf("file %s: %w", filename, err)
		}
		v.validateActor(rec)
	case storage.ItemsDir:
		var it item.Item
		if err := decodeStrict(data, &it); err != nil {
			return fmt.Errorf("file %s failed strict JSON unmarshaling: %w", filename, err)
		}
		v.validateItem(&it, id)
	case storage.FoldersDir:
		var f document.Folder
		if err := decodeStrict(data, &f); err != nil {
			return fmt.Errorf("file %s failed strict JSON unmarshaling: %w", filename, err)
		}
		v.validateFolder(&f)
	case storage.TablesDir:
		var t document.RollTable
		if err := decodeStrict(data, &t); err != nil {
			return fmt.Errorf("file %s failed strict JSON unmarshaling: %w", filename, err)
		}
		v.validateTable(&t)
	case storage.PacksDir:
		var p document.Pack
		if err := decodeStrict(data, &p); err != nil {
			return fmt.Errorf("file %s failed strict JSON unmarshaling: %w", filename, err)
		}
		v.validatePack(&p)
	default:
		return fmt.Errorf("file %s is not in a known document directory (%s)", filename, kind)
	}

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}
	return nil
}

func decodeStrict(data []byte, v any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func (v *DataValidator) validateActor(rec *actor.Record) {
	for i := range rec.Items {
		v.validateItem(&rec.Items[i], "")
	}
	for code, amount := range rec.Currency {
		if !loot.IsCurrency(code) {
			v.addError(fmt.Sprintf("unknown currency '%s'", code))
		}
		if amount < 0 {
			v.addError(fmt.Sprintf("currency '%s' is negative", code))
		}
	}

	flags := rec.Flags[v.cfg.Namespace]
	if raw, ok := flags[v.cfg.ListKey]; ok {
		var entries []loot.Entry
		if err := json.Unmarshal(raw, &entries); err != nil {
			v.addError(fmt.Sprintf("loot list is not a list of entries: %v", err))
		}
		for _, e := range entries {
			if strings.TrimSpace(e.Reference) == "" {
				v.addError("loot list entry has an empty uuid")
				continue
			}
			if _, err := document.ParseReference(e.Reference); err != nil {
				v.addError(fmt.Sprintf("loot list entry '%s': %v", e.Reference, err))
			}
			v.validateFormula("quantity of "+e.Reference, e.Quantity)
		}
	}
	if raw, ok := flags[v.cfg.CurrenciesKey]; ok {
		var currencies map[string]string
		if err := json.Unmarshal(raw, &currencies); err != nil {
			v.addError(fmt.Sprintf("currencies are not a map of formulas: %v", err))
		}
		for code, formula := range currencies {
			if !loot.IsCurrency(code) {
				v.addError(fmt.Sprintf("unknown currency '%s' on loot list", code))
				continue
			}
			v.validateFormula("currency "+code, formula)
		}
	}
}

func (v *DataValidator) validateItem(it *item.Item, fileID string) {
	label := it.Name
	if label == "" {
		label = fileID
	}
	if it.Name == "" {
		v.addError(fmt.Sprintf("item '%s' has no name", label))
	}
	if it.Type == "" {
		v.addError(fmt.Sprintf("item '%s' has no type", label))
	}
	if it.System.Quantity < 0 {
		v.addError(fmt.Sprintf("item '%s' has a negative quantity", label))
	}
	if it.Source != "" {
		if _, err := document.ParseReference(it.Source); err != nil {
			v.addError(fmt.Sprintf("item '%s' source: %v", label, err))
		}
	}
}

func (v *DataValidator) validateFolder(f *document.Folder) {
	if f.Type == "" {
		v.addError(fmt.Sprintf("folder '%s' has no document type", f.Name))
	}
	for _, id := range f.Contents {
		if !isValidID(id) {
			v.addError(fmt.Sprintf("folder '%s' content '%s' is not a valid document ID", f.Name, id))
		}
	}
}

func (v *DataValidator) validateTable(t *document.RollTable) {
	if t.Formula != "" {
		v.validateFormula("table formula", t.Formula)
	}
	for i, r := range t.Results {
		switch r.Type {
		case document.ResultText:
		case document.ResultDocument, document.ResultCompendium:
			if _, ok := r.Reference(); !ok {
				v.addError(fmt.Sprintf("table '%s' result %d is missing its collection or document id", t.Name, i))
			}
		default:
			v.addError(fmt.Sprintf("table '%s' result %d has unknown type '%s'", t.Name, i, r.Type))
		}
		if r.Weight < 0 {
			v.addError(fmt.Sprintf("table '%s' result %d has a negative weight", t.Name, i))
		}
	}
}

func (v *DataValidator) validatePack(p *document.Pack) {
	if p.Type == "" {
		v.addError(fmt.Sprintf("pack '%s' has no document type", p.Label))
	}
	seen := make(map[string]bool, len(p.Items))
	for i := range p.Items {
		it := &p.Items[i]
		if it.ID == "" {
			v.addError(fmt.Sprintf("pack '%s' entry %d has no id", p.Label, i))
		} else if seen[it.ID] {
			v.addError(fmt.Sprintf("pack '%s' has duplicate entry '%s'", p.Label, it.ID))
		}
		seen[it.ID] = true
		v.validateItem(it, it.ID)
	}
}

func (v *DataValidator) validateFormula(field, formula string) {
	if strings.TrimSpace(formula) == "" {
		return
	}
	if _, err := dice.Parse(formula); err != nil {
		v.addError(fmt.Sprintf("%s '%s' is not a valid formula: %v", field, formula, err))
	}
}

func (v *DataValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var validIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}
