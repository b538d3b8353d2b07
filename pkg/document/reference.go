// Package document resolves hierarchical document references to items and
// item containers.
//
// Reference grammar:
//
//	Item.<id>                          world item
//	Folder.<id>                        world folder
//	RollTable.<id>                     world table
//	Actor.<id>.Item.<id>               item owned by an actor (any depth of Kind.<id> pairs)
//	Compendium.<pack>.<Kind>.<id>      compendium document; <pack> may contain dots
//	Compendium.<pack>.<id>             legacy compendium form, Kind is Item
package document

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Document kinds
const (
	KindItem       = "Item"
	KindActor      = "Actor"
	KindFolder     = "Folder"
	KindRollTable  = "RollTable"
	KindCompendium = "Compendium"
	KindScene      = "Scene"
	KindToken      = "Token"
)

var knownKinds = []string{KindItem, KindActor, KindFolder, KindRollTable, KindScene, KindToken}

// ErrInvalidReference indicates a reference that does not follow the grammar
var ErrInvalidReference = errors.New("invalid document reference")

// Reference is a parsed document reference
type Reference struct {
	Pack   string // compendium pack, empty for world documents
	Kind   string
	ID     string
	Parent string // reference of the owning document, empty for top-level documents
}

// ParseReference parses a reference string
func ParseReference(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, fmt.Errorf("%w: empty", ErrInvalidReference)
	}
	parts := strings.Split(raw, ".")
	if slices.Contains(parts, "") {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}

	if parts[0] == KindCompendium {
		return parseCompendium(raw, parts)
	}

	if len(parts)%2 != 0 {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}
	for i := 0; i < len(parts); i += 2 {
		if !slices.Contains(knownKinds, parts[i]) {
			return Reference{}, fmt.Errorf("%w: unknown kind %q in %q", ErrInvalidReference, parts[i], raw)
		}
	}
	n := len(parts)
	return Reference{
		Kind:   parts[n-2],
		ID:     parts[n-1],
		Parent: strings.Join(parts[:n-2], "."),
	}, nil
}

func parseCompendium(raw string, parts []string) (Reference, error) {
	n := len(parts)
	if n < 3 {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}
	if n >= 4 && slices.Contains(knownKinds, parts[n-2]) {
		return Reference{
			Pack: strings.Join(parts[1:n-2], "."),
			Kind: parts[n-2],
			ID:   parts[n-1],
		}, nil
	}
	return Reference{
		Pack: strings.Join(parts[1:n-1], "."),
		Kind: KindItem,
		ID:   parts[n-1],
	}, nil
}

// String returns the canonical form of the reference
func (r Reference) String() string {
	if r.Pack != "" {
		return strings.Join([]string{KindCompendium, r.Pack, r.Kind, r.ID}, ".")
	}
	if r.Parent != "" {
		return r.Parent + "." + r.Kind + "." + r.ID
	}
	return r.Kind + "." + r.ID
}

// IsEmbedded reports whether the document is owned by another document
func (r Reference) IsEmbedded() bool {
	return r.Parent != ""
}

// OwnerActorID returns the ID of the actor owning an embedded document
func (r Reference) OwnerActorID() (string, bool) {
	parts := strings.Split(r.Parent, ".")
	for i := len(parts) - 2; i >= 0; i -= 2 {
		if parts[i] == KindActor {
			return parts[i+1], true
		}
	}
	return "", false
}

// ItemRef is the reference of a world item
func ItemRef(id string) string {
	return KindItem + "." + id
}

// CompendiumRef is the reference of a document in a compendium pack
func CompendiumRef(pack, kind, id string) string {
	return Reference{Pack: pack, Kind: kind, ID: id}.String()
}
