package model

type ChatRequest struct {
	Message string `json:"message"`
	Wait    *bool  `json:"wait"` // nil means wait for the reply
}

type CreateSessionRequest struct {
	Title string `json:"title"`
	Kind  Kind   `json:"kind"`
}

type ListSessionsRequest struct {
	Query string `json:"query"`
}
