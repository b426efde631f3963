package rpc

import (
	"github.com/Oniqq60/civic_report_system/internal/assignment"
	"github.com/Oniqq60/civic_report_system/internal/task"
)

type GetTaskRequest struct {
	TaskID string `json:"taskId"`
}

type TransitionStatusRequest struct {
	TaskID          string `json:"taskId"`
	Status          string `json:"status"`
	EvidenceImageID string `json:"evidenceImageId,omitempty"`
}

type AssignResourceRequest struct {
	TaskID string `json:"taskId"`
}

type AddNoteRequest struct {
	TaskID string `json:"taskId"`
	Text   string `json:"text"`
}

type TaskResponse struct {
	Task task.Task `json:"task"`
}

type AssignResourceResponse struct {
	assignment.Result
}
