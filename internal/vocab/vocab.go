package vocab

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Reserved token ids. The model's pad/unknown/start/end handling depends
// on these being 0..3.
const (
	PadID     = 0
	UnknownID = 1
	StartID   = 2
	EndID     = 3

	numReserved = 4
)

const (
	padToken     = "<PAD>"
	unknownToken = "<UNK>"
	startToken   = "<START>"
	endToken     = "<END>"
)

var tokenPattern = regexp.MustCompile(`[^a-z0-9\s.,?!-]`)

// Vocabulary is a fixed-capacity word-level token<->id mapping with a
// frequency table. Ids are dense and contiguous from 0; rebuilding from
// the same texts in the same order yields the same mapping.
type Vocabulary struct {
	capacity int
	wordToID map[string]int
	idToWord map[int]string
	counts   map[string]int
}

// New returns an empty vocabulary holding only the four reserved tokens.
func New(capacity int) *Vocabulary {
	v := &Vocabulary{
		capacity: capacity,
		wordToID: make(map[string]int),
		idToWord: make(map[int]string),
		counts:   make(map[string]int),
	}
	v.addReserved()
	return v
}

func (v *Vocabulary) addReserved() {
	for id, token := range []string{padToken, unknownToken, startToken, endToken} {
		v.wordToID[token] = id
		v.idToWord[id] = token
	}
}

// Tokenize lowercases, strips everything outside a fixed character class
// and splits on whitespace.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	text = tokenPattern.ReplaceAllString(text, "")
	return strings.Fields(text)
}

// Build constructs the mapping from the given texts: tokens are counted,
// filtered by minFrequency and admitted most-frequent-first up to
// capacity, ties broken by first-seen order. Deterministic for identical
// input order.
func (v *Vocabulary) Build(texts []string, minFrequency int) {
	firstSeen := make(map[string]int)
	order := 0

	for _, text := range texts {
		for _, token := range Tokenize(text) {
			if _, ok := firstSeen[token]; !ok {
				firstSeen[token] = order
				order++
			}
			v.counts[token]++
		}
	}

	words := make([]string, 0, len(v.counts))
	for word := range v.counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if v.counts[words[i]] != v.counts[words[j]] {
			return v.counts[words[i]] > v.counts[words[j]]
		}
		return firstSeen[words[i]] < firstSeen[words[j]]
	})

	for _, word := range words {
		if len(v.wordToID) >= v.capacity {
			break
		}
		if v.counts[word] < minFrequency {
			continue
		}
		if _, ok := v.wordToID[word]; ok {
			continue
		}
		id := len(v.wordToID)
		v.wordToID[word] = id
		v.idToWord[id] = word
	}
}

// Encode converts text to token ids. Unknown tokens map to UnknownID.
// With addMarkers the sequence is wrapped in START/END. maxLength > 0
// truncates from the end or right-pads with PadID to exactly maxLength.
func (v *Vocabulary) Encode(text string, maxLength int, addMarkers bool) []int {
	tokens := Tokenize(text)

	ids := make([]int, 0, len(tokens)+2)
	if addMarkers {
		ids = append(ids, StartID)
	}
	for _, token := range tokens {
		if id, ok := v.wordToID[token]; ok {
			ids = append(ids, id)
		} else {
			ids = append(ids, UnknownID)
		}
	}
	if addMarkers {
		ids = append(ids, EndID)
	}

	if maxLength > 0 {
		if len(ids) > maxLength {
			ids = ids[:maxLength]
		} else {
			for len(ids) < maxLength {
				ids = append(ids, PadID)
			}
		}
	}

	return ids
}

// Decode converts ids back to a space-joined string. With skipMarkers it
// drops pad/start ids and stops at the first end id.
func (v *Vocabulary) Decode(ids []int, skipMarkers bool) string {
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		word, ok := v.idToWord[id]
		if !ok {
			continue
		}
		if skipMarkers {
			if id == EndID {
				break
			}
			if id == PadID || id == StartID {
				continue
			}
		}
		tokens = append(tokens, word)
	}
	return strings.Join(tokens, " ")
}

// Size returns the number of known tokens, reserved ids included.
func (v *Vocabulary) Size() int {
	return len(v.wordToID)
}

// Capacity returns the configured maximum vocabulary size.
func (v *Vocabulary) Capacity() int {
	return v.capacity
}

type vocabFile struct {
	Capacity int            `json:"capacity"`
	WordToID map[string]int `json:"word_to_id"`
	Counts   map[string]int `json:"counts"`
}

// Save persists the full mapping and frequency table. The file is written
// via temp-file rename so a concurrent reader never observes a partial
// write.
func (v *Vocabulary) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create vocab directory: %w", err)
	}

	data, err := json.Marshal(vocabFile{
		Capacity: v.capacity,
		WordToID: v.wordToID,
		Counts:   v.counts,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal vocabulary: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write vocabulary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace vocabulary file: %w", err)
	}

	return nil
}

// Load restores a vocabulary saved by Save. A missing file is an error
// the caller treats as "proceed with an empty vocabulary".
func (v *Vocabulary) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read vocabulary file: %w", err)
	}

	var file vocabFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse vocabulary file: %w", err)
	}

	v.capacity = file.Capacity
	v.wordToID = file.WordToID
	v.counts = file.Counts
	if v.counts == nil {
		v.counts = make(map[string]int)
	}

	v.idToWord = make(map[int]string, len(v.wordToID))
	for word, id := range v.wordToID {
		v.idToWord[id] = word
	}

	return nil
}
