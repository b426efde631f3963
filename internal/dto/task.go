package dto

import (
	"github.com/Oniqq60/civic_report_system/internal/intake"
	"github.com/Oniqq60/civic_report_system/internal/resource"
	"github.com/Oniqq60/civic_report_system/internal/task"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// CreateTaskResponse разворачивает сводку задачи на верхний уровень
type CreateTaskResponse struct {
	Success bool `json:"success"`
	*intake.Summary
}

type NoIssueResponse struct {
	Success         bool   `json:"success"`
	NoIssueDetected bool   `json:"noIssueDetected"`
	Message         string `json:"message"`
}

type ResourceSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

func NewResourceSummary(r resource.Resource) *ResourceSummary {
	return &ResourceSummary{
		ID:         r.ID,
		Name:       r.Name,
		Role:       string(r.Role),
		Department: r.Department,
		Phone:      r.Phone,
	}
}

type TaskResponse struct {
	task.Task
	AssignedResource *ResourceSummary `json:"assignedResource,omitempty"`
}

type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Count int            `json:"count"`
}

type TransitionRequest struct {
	Status          string `json:"status"`
	EvidenceImageID string `json:"evidenceImageId,omitempty"`
}

type NoteRequest struct {
	Text string `json:"text"`
}

type ImageUploadResponse struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

type ResourceListResponse struct {
	Resources []resource.Resource `json:"resources"`
	Count     int                 `json:"count"`
}
