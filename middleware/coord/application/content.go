package application

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize reduz um texto à forma usada para deduplicação: sem diacríticos, minúsculo,
// sem pontuação/símbolos e com espaços colapsados.
//
//	"  Olá,  MUNDO! " -> "ola mundo"
func Normalize(text string) string {
	// transform.Chain guarda estado: um por chamada
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}

// ContentHash é a impressão digital (xxhash64, 16 hex) do texto já normalizado.
// Não é criptográfica; serve só para identificar duplicatas.
func ContentHash(normalized string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}
