package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"task-manager/internal/domain"
	"task-manager/internal/repository"
)

// TaskService coordinates owner-scoped task operations backed by repositories.
type TaskService interface {
	CreateTask(ctx context.Context, ownerID int64, title, description string, completed bool) (*domain.Task, error)
	GetTask(ctx context.Context, ownerID, id int64) (*domain.Task, error)
	ListTasks(ctx context.Context, ownerID int64) ([]domain.Task, error)
	UpdateTask(ctx context.Context, ownerID, id int64, update domain.TaskUpdate) (*domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, id int64) error
}

type taskService struct {
	tasks repository.TaskRepository
}

func NewTaskService(tasks repository.TaskRepository) TaskService {
	return &taskService{tasks: tasks}
}

func (s *taskService) CreateTask(ctx context.Context, ownerID int64, title, description string, completed bool) (*domain.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	task := &domain.Task{
		Title:       title,
		Description: description,
		Completed:   completed,
		OwnerID:     ownerID,
	}
	if _, err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return task, nil
}

func (s *taskService) GetTask(ctx context.Context, ownerID, id int64) (*domain.Task, error) {
	task, err := s.tasks.Get(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrTaskNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if task.OwnerID != ownerID {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (s *taskService) ListTasks(ctx context.Context, ownerID int64) ([]domain.Task, error) {
	tasks, err := s.tasks.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return tasks, nil
}

func (s *taskService) UpdateTask(ctx context.Context, ownerID, id int64, update domain.TaskUpdate) (*domain.Task, error) {
	task, err := s.GetTask(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	update.Apply(task)
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return task, nil
}

func (s *taskService) DeleteTask(ctx context.Context, ownerID, id int64) error {
	if _, err := s.GetTask(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}
