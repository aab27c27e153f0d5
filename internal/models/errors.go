package models

import "errors"

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrFileInUse         = errors.New("file is in use by a running task")
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task status transition")
)
