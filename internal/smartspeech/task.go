package smartspeech

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// TaskStatus is the lifecycle state of an asynchronous task.
type TaskStatus int

const (
	TaskStatusUnspecified TaskStatus = iota
	TaskStatusNew
	TaskStatusRunning
	TaskStatusCanceled
	TaskStatusDone
	TaskStatusError
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	switch s {
	case TaskStatusUnspecified:
		return "UNSPECIFIED"
	case TaskStatusNew:
		return "NEW"
	case TaskStatusRunning:
		return "RUNNING"
	case TaskStatusCanceled:
		return "CANCELED"
	case TaskStatusDone:
		return "DONE"
	case TaskStatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// IsTerminal returns true once the task will not change any more.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCanceled || s == TaskStatusDone || s == TaskStatusError
}

// TaskInfo is a decoded Task message.
type TaskInfo struct {
	ID             string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Status         TaskStatus
	Error          string
	ResponseFileID string
}

// NewGetTaskRequest builds a GetTask request.
func NewGetTaskRequest(taskID string) proto.Message {
	m := newMessage(getTaskRequestDesc)
	set(m, "task_id", protoreflect.ValueOfString(taskID))
	return m
}

// NewCancelTaskRequest builds a CancelTask request.
func NewCancelTaskRequest(taskID string) proto.Message {
	m := newMessage(cancelTaskRequestDesc)
	set(m, "task_id", protoreflect.ValueOfString(taskID))
	return m
}

// NewTask allocates a Task message for a unary response.
func NewTask() proto.Message {
	return newMessage(taskDesc)
}

// DecodeTask converts a Task message.
func DecodeTask(msg proto.Message) (TaskInfo, error) {
	m, err := reflectAs(msg, taskDesc)
	if err != nil {
		return TaskInfo{}, err
	}
	return TaskInfo{
		ID:             get(m, "id").String(),
		CreatedAt:      getTimestamp(m, "created_at"),
		UpdatedAt:      getTimestamp(m, "updated_at"),
		Status:         TaskStatus(get(m, "status").Enum()),
		Error:          get(m, "error").String(),
		ResponseFileID: get(m, "response_file_id").String(),
	}, nil
}

// EncodeTask fills a Task message; the inverse of DecodeTask.
func EncodeTask(t TaskInfo) proto.Message {
	m := newMessage(taskDesc)
	set(m, "id", protoreflect.ValueOfString(t.ID))
	if !t.CreatedAt.IsZero() {
		setTimestamp(m, "created_at", t.CreatedAt)
	}
	if !t.UpdatedAt.IsZero() {
		setTimestamp(m, "updated_at", t.UpdatedAt)
	}
	set(m, "status", protoreflect.ValueOfEnum(protoreflect.EnumNumber(t.Status)))
	set(m, "error", protoreflect.ValueOfString(t.Error))
	set(m, "response_file_id", protoreflect.ValueOfString(t.ResponseFileID))
	return m
}

// ParseTaskRequest returns the task id of a GetTask or CancelTask request.
func ParseTaskRequest(msg proto.Message) (string, error) {
	pm := msg.ProtoReflect()
	switch pm.Descriptor().FullName() {
	case getTaskRequestDesc.FullName(), cancelTaskRequestDesc.FullName():
		return get(pm, "task_id").String(), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnexpectedMessage, pm.Descriptor().FullName())
	}
}
