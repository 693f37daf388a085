package contract

import "sort"

// Todo is a single record of the todos read model as seen by clients.
type Todo struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Completed    bool   `json:"completed"`
	CreationTime int64  `json:"creationTime"`
}

// SortNewestFirst orders todos by descending creation time. Records created
// in the same millisecond fall back to id order so snapshots are stable.
func SortNewestFirst(todos []Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		if todos[i].CreationTime != todos[j].CreationTime {
			return todos[i].CreationTime > todos[j].CreationTime
		}
		return todos[i].ID < todos[j].ID
	})
}
