// Package notify produces the localized notifications shown to the user
// after loot list operations.
package notify

import (
	"cmp"
	"slices"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Notification levels
const (
	LevelInfo    = "info"
	LevelWarning = "warn"
)

// Message keys
const (
	KeyAddedItems      = "SimpleLootList.WarningAddedItems"
	KeyCreatedItems    = "SimpleLootList.WarningCreatedItems"
	KeyUpdatedItems    = "SimpleLootList.WarningUpdatedItems"
	KeySkippedItems    = "SimpleLootList.WarningSkippedItems"
	KeyBadCurrency     = "SimpleLootList.WarningBadCurrency"
	KeyItemNotFound    = "SimpleLootList.WarningItemNotFound"
	KeyNoTarget        = "SimpleLootList.WarningNoTarget"
	KeyInvalidDocument = "SimpleLootList.WarningInvalidDocument"
	KeyInvalidType     = "SimpleLootList.WarningInvalidType"
	KeyEmptyDocument   = "SimpleLootList.WarningEmptyDocument"
	KeyActorItem       = "SimpleLootList.WarningActorItem"
	KeySaved           = "SimpleLootList.InfoSaved"
)

// Notification is one message for the user
type Notification struct {
	Level   string `json:"level"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

var messages = map[language.Tag]map[string]string{
	language.English: {
		KeyAddedItems:      "Added %[1]d item(s) to the loot list of %[2]s.",
		KeyCreatedItems:    "Created %[1]d item(s) on %[2]s.",
		KeyUpdatedItems:    "Updated %[1]d existing stack(s) on %[2]s.",
		KeySkippedItems:    "Skipped %[1]d loot list entries.",
		KeyBadCurrency:     "The %[1]s formula could not be rolled; no %[1]s was granted.",
		KeyItemNotFound:    "The item with uuid '%[1]s' could not be found.",
		KeyNoTarget:        "You must target a token to grant loot to.",
		KeyInvalidDocument: "The dropped document is not a valid item, folder, table, or compendium.",
		KeyInvalidType:     "Items of type '%[1]s' cannot be added to a loot list.",
		KeyEmptyDocument:   "The dropped document contains no valid items.",
		KeyActorItem:       "Items owned by an actor cannot be added to a loot list.",
		KeySaved:           "Saved the loot list of %[1]s.",
	},
	language.German: {
		KeyAddedItems:      "%[1]d Gegenstand/Gegenstände zur Beuteliste von %[2]s hinzugefügt.",
		KeyCreatedItems:    "%[1]d Gegenstand/Gegenstände bei %[2]s erstellt.",
		KeyUpdatedItems:    "%[1]d vorhandene(r) Stapel bei %[2]s aktualisiert.",
		KeySkippedItems:    "%[1]d Einträge der Beuteliste übersprungen.",
		KeyBadCurrency:     "Die Formel für %[1]s konnte nicht gewürfelt werden; es wurde kein %[1]s vergeben.",
		KeyItemNotFound:    "Der Gegenstand mit der uuid '%[1]s' wurde nicht gefunden.",
		KeyNoTarget:        "Du musst ein Token anvisieren, um Beute zu vergeben.",
		KeyInvalidDocument: "Das abgelegte Dokument ist kein gültiger Gegenstand, Ordner, Tabelle oder Kompendium.",
		KeyInvalidType:     "Gegenstände vom Typ '%[1]s' können nicht zu einer Beuteliste hinzugefügt werden.",
		KeyEmptyDocument:   "Das abgelegte Dokument enthält keine gültigen Gegenstände.",
		KeyActorItem:       "Gegenstände im Besitz eines Akteurs können nicht hinzugefügt werden.",
		KeySaved:           "Beuteliste von %[1]s gespeichert.",
	},
}

var (
	buildOnce sync.Once
	cat       catalog.Catalog
	supported []language.Tag
	matcher   language.Matcher
)

func build() {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	supported = []language.Tag{language.English}
	for tag, msgs := range messages {
		if tag != language.English {
			supported = append(supported, tag)
		}
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	slices.SortFunc(supported[1:], func(a, b language.Tag) int { return cmp.Compare(a.String(), b.String()) })
	cat = b
	matcher = language.NewMatcher(supported)
}

// Supported returns the languages notifications are translated to; the
// first is the fallback
func Supported() []language.Tag {
	buildOnce.Do(build)
	return slices.Clone(supported)
}

// Match picks the best supported language for an Accept-Language value
func Match(accept string) language.Tag {
	buildOnce.Do(build)
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Notifier formats notifications in one language
type Notifier struct {
	tag     language.Tag
	printer *message.Printer
}

// New creates a notifier for the supported language closest to tag
func New(tag language.Tag) *Notifier {
	buildOnce.Do(build)
	_, idx, _ := matcher.Match(tag)
	tag = supported[idx]
	return &Notifier{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(cat)),
	}
}

// Language returns the notifier's language
func (n *Notifier) Language() language.Tag {
	return n.tag
}

// Info formats an informational notification
func (n *Notifier) Info(key string, args ...any) Notification {
	return Notification{Level: LevelInfo, Key: key, Message: n.printer.Sprintf(key, args...)}
}

// Warn formats a warning notification
func (n *Notifier) Warn(key string, args ...any) Notification {
	return Notification{Level: LevelWarning, Key: key, Message: n.printer.Sprintf(key, args...)}
}

// SortByName sorts items by the names name returns, using the collation
// rules of the notifier's language
func SortByName[T any](n *Notifier, items []T, name func(T) string) {
	c := collate.New(n.tag, collate.IgnoreCase)
	slices.SortStableFunc(items, func(a, b T) int {
		return c.CompareString(name(a), name(b))
	})
}
