package model

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// User is a member of the household who can be assigned chores.
type User struct {
	ID             uint   `gorm:"primaryKey"`
	Name           string `gorm:"not null"`
	NormalizedName string `gorm:"index;not null"`
	CreatedAt      time.Time
}

// NormalizeName case-folds name and strips everything that is not a letter.
// Accents are decomposed first so they drop out with the other marks.
func NormalizeName(name string) string {
	// A Caser holds state, so each call gets its own.
	decomposed := norm.NFKD.String(cases.Fold().String(strings.TrimSpace(name)))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
