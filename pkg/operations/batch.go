package operations

import (
	"fmt"
	"strings"

	"github.com/thermos-iot/thermos-console/pkg/display"
)

type message struct {
	es string
	en string
}

func (m message) format(lang display.Lang, args ...any) string {
	if lang == display.English {
		return fmt.Sprintf(m.en, args...)
	}
	return fmt.Sprintf(m.es, args...)
}

var (
	msgInserted  = message{"Se insertaron %d de %d registros", "Inserted %d of %d rows"}
	msgUpdated   = message{"Se actualizaron %d de %d registros", "Updated %d of %d rows"}
	msgMissingID = message{"El registro no tiene identificador", "The row has no id"}
)

// ItemError is the failure of one row in a batch.
type ItemError struct {
	// Index is the 1-based position of the row in the batch.
	Index   int    `json:"index"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// BatchResult summarizes a batch insert or update.
type BatchResult struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	IDs       []int64     `json:"ids"`
	Errors    []ItemError `json:"errors"`
	Message   string      `json:"message"`
}

func (b *BatchResult) succeed(id int64) {
	b.Succeeded++
	b.IDs = append(b.IDs, id)
}

func (b *BatchResult) fail(index int, msg string, err error) {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	b.Errors = append(b.Errors, ItemError{Index: index, Message: msg, Err: err})
}

// Failed returns the number of rows that were not written.
func (b BatchResult) Failed() int {
	return b.Total - b.Succeeded
}

// Err returns nil when every row was written, else an error listing the
// failed rows.
func (b BatchResult) Err() error {
	if len(b.Errors) == 0 {
		return nil
	}

	lines := make([]string, len(b.Errors))
	for i, e := range b.Errors {
		lines[i] = fmt.Sprintf("row %d: %s", e.Index, e.Message)
	}
	return fmt.Errorf("%s: %s", b.Message, strings.Join(lines, "; "))
}
