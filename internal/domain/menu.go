package domain

import (
	"strings"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/textutil"
)

// CompositeSeparator joins two identifiers of a split item.
const CompositeSeparator = "+"

// ImageRefs are asset references of a menu item. The halves only exist for
// composeable categories.
type ImageRefs struct {
	General   string `json:"general,omitempty" dynamodbav:"general,omitempty"`
	LeftHalf  string `json:"leftHalf,omitempty" dynamodbav:"leftHalf,omitempty"`
	RightHalf string `json:"rightHalf,omitempty" dynamodbav:"rightHalf,omitempty"`
}

type MenuItem struct {
	Identifier  string    `json:"identifier" dynamodbav:"identifier"`
	Name        string    `json:"name" dynamodbav:"name"`
	Description string    `json:"description" dynamodbav:"description"`
	OriginStory string    `json:"originStory,omitempty" dynamodbav:"originStory,omitempty"`
	Category    string    `json:"category" dynamodbav:"category"`
	Price       float64   `json:"price" dynamodbav:"price"`
	Available   bool      `json:"available" dynamodbav:"available"`
	Images      ImageRefs `json:"images" dynamodbav:"images"`
}

// MenuIdentifier derives the protocol identifier of an item:
// slug(category) + "_" + slug(name).
func MenuIdentifier(category, name string) string {
	return textutil.Slug(category) + "_" + textutil.Slug(name)
}

// CompositeIdentifier joins two item identifiers into a split item identifier.
func CompositeIdentifier(a, b string) string {
	return a + CompositeSeparator + b
}

// SplitComposite splits "a+b". ok is false when id is not a composite.
func SplitComposite(id string) (a, b string, ok bool) {
	a, b, ok = strings.Cut(id, CompositeSeparator)
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// IsComposeable reports whether the item can be half of a split item.
func (m MenuItem) IsComposeable() bool {
	return m.Images.LeftHalf != "" || m.Images.RightHalf != "" || strings.Contains(textutil.Fold(m.Category), "pizza")
}

// IsDessert reports whether the item belongs to a sweet category.
func (m MenuItem) IsDessert() bool {
	return textutil.ContainsAny(m.Category, "doce", "doces", "sobremesa", "sobremesas")
}

// TrailingSegment is the name part of an identifier ("cat_name" -> "name").
func TrailingSegment(identifier string) string {
	if i := strings.LastIndex(identifier, "_"); i >= 0 {
		return identifier[i+1:]
	}
	return identifier
}

type PaymentMethod struct {
	Name          string `json:"name" dynamodbav:"name"`
	Description   string `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Active        bool   `json:"active" dynamodbav:"active"`
	AcceptsChange bool   `json:"acceptsChange" dynamodbav:"acceptsChange"`
}

// BotConfiguration is read-only to the engine; the admin surface owns it.
type BotConfiguration struct {
	Name                 string `json:"name" dynamodbav:"name"`
	Personality          string `json:"personality" dynamodbav:"personality"`
	Tone                 string `json:"tone" dynamodbav:"tone"`
	Greeting             string `json:"greeting" dynamodbav:"greeting"`
	PromptTemplate       string `json:"promptTemplate" dynamodbav:"promptTemplate"`
	MenuImageRef         string `json:"menuImageRef" dynamodbav:"menuImageRef"`
	MenuCaption          string `json:"menuCaption" dynamodbav:"menuCaption"`
	ConfirmationImageRef string `json:"confirmationImageRef" dynamodbav:"confirmationImageRef"`
}
