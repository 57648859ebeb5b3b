package workflow

import (
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/transport-portal/internal/domain"
)

// ErrEmptyNote is returned when a note has no text.
var ErrEmptyNote = errors.New("note text is required")

// AppendNote adds an admin note to the end of the ledger. The ledger has no
// edit or delete counterpart.
func AppendNote(app domain.Application, authorID, text string, now time.Time) (domain.Application, domain.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return app, domain.Note{}, ErrEmptyNote
	}
	note := domain.Note{
		ApplicationID: app.ID,
		Text:          text,
		AuthorID:      authorID,
		CreatedAt:     now,
	}
	out := app.Clone()
	out.Notes = append(out.Notes, note)
	out.UpdatedAt = now
	return out, note, nil
}
