package api

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type addTaskRequest struct {
	Text string `json:"text"`
}

type moveTaskRequest struct {
	Status string `json:"status"`
}

type reorderRequest struct {
	Source      string `json:"source"`
	SourceIndex int    `json:"sourceIndex"`
	Destination string `json:"destination"`
	DestIndex   int    `json:"destIndex"`
	TaskID      string `json:"taskId"`
}

type errorResponse struct {
	Error string `json:"error"`
}
