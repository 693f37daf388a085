package domain

import "livetodo/internal/tables"

// TodoUpdate carries a partial merge for a single field of a todo row
// together with that field's timestamp.
type TodoUpdate struct {
	PartitionKey           string  `json:"PartitionKey"`
	RowKey                 string  `json:"RowKey"`
	Text                   *string `json:"Text,omitempty"`
	TextTimestamp          *int64  `json:"TextTimestamp,omitempty,string"`
	TextTimestampType      *string `json:"TextTimestamp@odata.type,omitempty"`
	Completed              *bool   `json:"Completed,omitempty"`
	CompletedType          *string `json:"Completed@odata.type,omitempty"`
	CompletedTimestamp     *int64  `json:"CompletedTimestamp,omitempty,string"`
	CompletedTimestampType *string `json:"CompletedTimestamp@odata.type,omitempty"`
}

func textUpdate(ent tables.TodoEntity, text string, ts int64) TodoUpdate {
	typ := tables.EdmInt64
	return TodoUpdate{
		PartitionKey:      ent.PartitionKey,
		RowKey:            ent.RowKey,
		Text:              &text,
		TextTimestamp:     &ts,
		TextTimestampType: &typ,
	}
}

func completedUpdate(ent tables.TodoEntity, completed bool, ts int64) TodoUpdate {
	boolType := tables.EdmBoolean
	tsType := tables.EdmInt64
	return TodoUpdate{
		PartitionKey:           ent.PartitionKey,
		RowKey:                 ent.RowKey,
		Completed:              &completed,
		CompletedType:          &boolType,
		CompletedTimestamp:     &ts,
		CompletedTimestampType: &tsType,
	}
}
