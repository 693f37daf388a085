package consts

const (
	// SSEDataPrefix starts every snapshot frame on the stream.
	SSEDataPrefix = "data: "
	// TodosCacheKey holds the latest JSON snapshot of the todos read model.
	TodosCacheKey = "todos"
	// DefaultUpdatesChannel carries change notifications from the read model updater.
	DefaultUpdatesChannel = "todo-updates"
	// TodosPartition is the table partition every todo record lives in.
	TodosPartition = "todos"
)
