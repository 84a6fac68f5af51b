package exchange

import "github.com/xtrntr/cxgame/internal/models"

// FillRecorder keeps the per-user fill histories and the archive of orders
// that reached a terminal state with some fill. Both are append-only.
type FillRecorder struct {
	byUser    map[string][]models.Fill
	completed []models.Archived
}

func NewFillRecorder() *FillRecorder {
	return &FillRecorder{byUser: make(map[string][]models.Fill)}
}

// Open starts an empty history for user if none exists.
func (f *FillRecorder) Open(user string) {
	if _, ok := f.byUser[user]; !ok {
		f.byUser[user] = []models.Fill{}
	}
}

func (f *FillRecorder) Record(user string, fill models.Fill) {
	f.byUser[user] = append(f.byUser[user], fill)
}

// For returns a copy of user's fills, never nil.
func (f *FillRecorder) For(user string) []models.Fill {
	return append([]models.Fill{}, f.byUser[user]...)
}

// Archive stores a snapshot of a finished order. Callers pass values, never
// pointers into the active lists.
func (f *FillRecorder) Archive(order models.Archived) {
	f.completed = append(f.completed, order)
}

func (f *FillRecorder) Completed() []models.Archived {
	return append([]models.Archived{}, f.completed...)
}
