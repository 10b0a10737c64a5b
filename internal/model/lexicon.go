package model

import "time"

// Lexicon is a named word list. A search literal "@L<id>-<label>" expands
// to every word of lexicon <id>.
type Lexicon struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Words       []string  `json:"words"`
	CreatedAt   time.Time `json:"created_at"`
}

// Concept groups terms judged equivalent. A search literal "@C<id>-<label>"
// expands to every term of concept <id>.
type Concept struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Terms     []string  `json:"terms"`
	CreatedAt time.Time `json:"created_at"`
}
