package service

type RunCommandRequest struct {
	Command string `json:"command"`
}

type ReadFileRequest struct {
	Path string `json:"path"`
}

type WriteFileRequest struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

type RunResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returncode"`
}

type FileContent struct {
	File    string `json:"file"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

type WriteResult struct {
	Status string `json:"status"`
	File   string `json:"file"`
	Bytes  int    `json:"bytes"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
