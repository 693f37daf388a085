package api

import "livetodo/internal/contract"

const postCommandMaxSize = 64 * 1024 // 64 KiB

// /GET /api/todos response body
type todosResponse struct {
	Todos []contract.Todo `json:"todos"`
}

// /POST /api/commands response body
type postCommandResponse struct {
	IdempotencyKeys []string `json:"idempotencyKeys,omitempty"`
	IDs             []string `json:"ids,omitempty"`
	Error           string   `json:"error,omitempty"`
}
